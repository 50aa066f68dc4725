package yamlerr

// SQLState maps an Error's Kind to its PostgreSQL SQLSTATE code, per the
// taxonomy in spec.md §7. KindNotFound and KindAuth each cover two
// conditions in that taxonomy; SQLState returns the first (object
// not found / bad credentials) since there is no further signal here to
// distinguish the column-vs-table or cleartext-vs-protocol cases.
func (k Kind) SQLState() string {
	switch k {
	case KindParse:
		return "42601"
	case KindNotFound:
		return "42P01"
	case KindType:
		return "22000"
	case KindArithmetic:
		return "22012"
	case KindNotImplemented:
		return "0A000"
	case KindAuth:
		return "28P01"
	case KindProtocol:
		return "08P01"
	case KindResource:
		return "53300"
	default:
		return "XX000"
	}
}

// MySQLCode maps an Error's Kind to its MySQL error code, per spec.md §7.
func (k Kind) MySQLCode() uint16 {
	switch k {
	case KindParse:
		return 1064
	case KindNotFound:
		return 1146
	case KindType:
		return 1292
	case KindArithmetic:
		return 1365
	case KindNotImplemented:
		return 1235
	case KindAuth:
		return 1045
	case KindProtocol:
		return 1047
	case KindResource:
		return 1203
	default:
		return 1105 // ER_UNKNOWN_ERROR
	}
}

// AsError unwraps err into *Error, wrapping it as KindInternal if it
// isn't already one of ours (e.g. an I/O error bubbling up).
func AsError(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{Kind: KindInternal, Message: err.Error()}
}
