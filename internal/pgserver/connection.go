// Package pgserver implements the PostgreSQL wire protocol server
// (spec.md §4.7/§4.6): startup/auth, the simple query protocol, and the
// extended (Parse/Bind/Describe/Execute/Sync/Close) protocol, built on
// jackc/pgx/v5's pgproto3.Backend the same way a ConnectionHandler
// wraps it, but driving internal/exec.Executor over internal/schema
// snapshots instead of a DuckDB-backed SQL engine.
package pgserver

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"regexp"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yamldb/yamldb/internal/connmgr"
	"github.com/yamldb/yamldb/internal/exec"
	"github.com/yamldb/yamldb/internal/schema"
	"github.com/yamldb/yamldb/internal/sqlparse/ast"
	"github.com/yamldb/yamldb/internal/sqlparse/parser"
	"github.com/yamldb/yamldb/internal/srvconfig"
	"github.com/yamldb/yamldb/internal/value"
	"github.com/yamldb/yamldb/internal/yamlerr"
)

const serverVersion = "15.0 (yamldb)"

// preparedStatement is what Parse stores: the parsed AST plus whatever
// parameter OIDs the client declared (spec.md §4.6's parse()).
type preparedStatement struct {
	sql       string
	stmt      ast.Statement
	paramOIDs []uint32
}

// portal is what Bind stores: a prepared statement plus bound parameter
// values and the client's requested result column formats.
type portal struct {
	stmt          *preparedStatement
	params        []value.Value
	resultFormats []int16
}

// conn holds per-connection extended-protocol state; it is owned by a
// single goroutine, so (per spec.md §5) none of it needs its own lock.
type conn struct {
	raw     net.Conn
	backend *pgproto3.Backend
	cfg     srvconfig.Config
	storage *schema.Storage
	mgr     *connmgr.Manager
	connID  uint64

	user     string
	database string

	prepared map[string]*preparedStatement
	portals  map[string]*portal

	waitForSync bool
}

// HandleConnection runs one connection's entire session to completion.
// Expected to run in its own goroutine (spec.md §4.11/§5).
func HandleConnection(raw net.Conn, cfg srvconfig.Config, storage *schema.Storage, mgr *connmgr.Manager, connID uint64) {
	c := &conn{
		raw:      raw,
		backend:  pgproto3.NewBackend(raw, raw),
		cfg:      cfg,
		storage:  storage,
		mgr:      mgr,
		connID:   connID,
		prepared: make(map[string]*preparedStatement),
		portals:  make(map[string]*portal),
	}
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("pgserver: panic handling connection: %v\n%s", r, debug.Stack())
		}
	}()

	proceed, err := c.handleStartup()
	if err != nil && err != io.EOF {
		logrus.WithError(err).Debug("pgserver: startup failed")
	}
	if err != nil || !proceed {
		return
	}

	for {
		c.resetDeadline()
		stop, err := c.receiveMessage()
		if err != nil {
			if isTimeout(err) {
				c.mgr.MarkTimedOut()
			} else if err != io.EOF {
				c.mgr.MarkFailed()
				logrus.WithError(err).Debug("pgserver: connection ended with error")
			}
			return
		}
		if stop {
			return
		}
		c.mgr.Touch(c.connID)
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func (c *conn) resetDeadline() {
	timeout := c.mgr.ConnTimeout()
	if timeout > 0 {
		_ = c.raw.SetDeadline(time.Now().Add(timeout))
	}
}

// handleStartup implements spec.md §4.7's startup sequence: SSL/GSSENC
// refusal, authentication, and the initial parameter/ReadyForQuery burst.
func (c *conn) handleStartup() (bool, error) {
	msg, err := c.backend.ReceiveStartupMessage()
	if err != nil {
		if err == io.EOF {
			return false, nil
		}
		return false, fmt.Errorf("receiving startup message: %w", err)
	}

	switch sm := msg.(type) {
	case *pgproto3.StartupMessage:
		c.user = sm.Parameters["user"]
		c.database = sm.Parameters["database"]
		if c.database == "" {
			c.database = c.user
		}
		if err := authenticate(c.backend, c.cfg, c.user); err != nil {
			return false, err
		}
		if err := c.sendStartupParameters(); err != nil {
			return false, err
		}
		c.backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
		return true, c.backend.Flush()
	case *pgproto3.SSLRequest:
		if _, err := c.raw.Write([]byte("N")); err != nil {
			return false, fmt.Errorf("responding to SSLRequest: %w", err)
		}
		return c.handleStartup()
	case *pgproto3.GSSEncRequest:
		if _, err := c.raw.Write([]byte("N")); err != nil {
			return false, fmt.Errorf("responding to GSSEncRequest: %w", err)
		}
		return c.handleStartup()
	case *pgproto3.CancelRequest:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected startup message %T", msg)
	}
}

func (c *conn) sendStartupParameters() error {
	params := []struct{ name, value string }{
		{"server_version", serverVersion},
		{"server_encoding", "UTF8"},
		{"client_encoding", "UTF8"},
		{"DateStyle", "ISO, MDY"},
		{"TimeZone", "UTC"},
	}
	for _, p := range params {
		c.backend.Send(&pgproto3.ParameterStatus{Name: p.name, Value: p.value})
	}
	c.backend.Send(&pgproto3.BackendKeyData{ProcessID: uint32(os.Getpid()), SecretKey: uint32(c.connID)})
	return nil
}

// receiveMessage reads and dispatches one message; an error returned
// from handleMessage is reported to the client without tearing down the
// connection (spec.md §7's protocol-handler propagation policy), while
// an error from Receive itself is a wire-level failure the caller treats
// as connection-ending.
func (c *conn) receiveMessage() (stop bool, err error) {
	msg, err := c.backend.Receive()
	if err != nil {
		return false, err
	}

	stop, endOfMessages, herr := c.handleMessage(msg)
	if herr != nil {
		if c.waitForSync {
			if serr := c.discardToSync(); serr != nil {
				return false, serr
			}
		}
		c.endOfMessages(herr)
	} else if endOfMessages {
		c.endOfMessages(nil)
	}
	return stop, nil
}

func (c *conn) handleMessage(msg pgproto3.Message) (stop, endOfMessages bool, err error) {
	switch m := msg.(type) {
	case *pgproto3.Terminate:
		return true, false, nil
	case *pgproto3.Sync:
		c.waitForSync = false
		return false, true, nil
	case *pgproto3.Query:
		return false, true, c.handleQuery(m)
	case *pgproto3.Parse:
		return false, false, c.handleParse(m)
	case *pgproto3.Describe:
		return false, false, c.handleDescribe(m)
	case *pgproto3.Bind:
		return false, false, c.handleBind(m)
	case *pgproto3.Execute:
		return false, false, c.handleExecute(m)
	case *pgproto3.Close:
		if m.ObjectType == 'S' {
			delete(c.prepared, m.Name)
		} else {
			delete(c.portals, m.Name)
		}
		c.backend.Send(&pgproto3.CloseComplete{})
		return false, false, c.backend.Flush()
	default:
		return false, true, yamlerr.New(yamlerr.KindProtocol, "unhandled message type %T", msg)
	}
}

// handleQuery implements the 'Q' simple query protocol: one Database
// snapshot is shared across every statement in the message so a
// multi-statement batch observes one consistent version (spec.md §4.2).
func (c *conn) handleQuery(m *pgproto3.Query) error {
	stmts, err := parser.Parse(m.String)
	if err != nil {
		return yamlerr.Wrap(yamlerr.KindParse, err, "parse error")
	}

	delete(c.prepared, "")
	delete(c.portals, "")

	snap := c.storage.Snapshot()
	for _, stmt := range stmts {
		x := exec.New(snap, c.storage)
		res, err := x.Execute(stmt)
		if err != nil {
			return err
		}
		if err := c.sendSimpleResult(res); err != nil {
			return err
		}
	}
	return nil
}

// sendSimpleResult sends RowDescription/DataRow/CommandComplete for one
// statement's result. Per spec.md §4.7, the simple query path may
// advertise every column as OID 25 (text) in text format.
func (c *conn) sendSimpleResult(res *exec.Result) error {
	fields := make([]pgproto3.FieldDescription, len(res.Columns))
	for i, name := range res.Columns {
		fields[i] = pgproto3.FieldDescription{
			Name:         []byte(name),
			DataTypeOID:  oidText,
			DataTypeSize: -1,
			TypeModifier: -1,
			Format:       0,
		}
	}
	c.backend.Send(&pgproto3.RowDescription{Fields: fields})
	for _, row := range res.Rows {
		vals := make([][]byte, len(row))
		for i, v := range row {
			vals[i] = encodeText(v)
		}
		c.backend.Send(&pgproto3.DataRow{Values: vals})
	}
	c.backend.Send(&pgproto3.CommandComplete{CommandTag: []byte(res.Tag)})
	return c.backend.Flush()
}

// handleParse implements spec.md §4.6's parse(): stores the parsed AST
// keyed by statement name, replacing any existing entry.
func (c *conn) handleParse(m *pgproto3.Parse) error {
	c.waitForSync = true
	stmts, err := parser.Parse(m.Query)
	if err != nil {
		return yamlerr.Wrap(yamlerr.KindParse, err, "parse error")
	}
	if len(stmts) != 1 {
		return yamlerr.NotImplemented("extended protocol supports exactly one statement per Parse message")
	}

	c.prepared[m.Name] = &preparedStatement{
		sql:       m.Query,
		stmt:      stmts[0],
		paramOIDs: append([]uint32(nil), m.ParameterOIDs...),
	}
	c.backend.Send(&pgproto3.ParseComplete{})
	return c.backend.Flush()
}

// handleBind implements spec.md §4.6's bind(): decodes every parameter
// per its declared type and storage format, then stores a Portal.
func (c *conn) handleBind(m *pgproto3.Bind) error {
	c.waitForSync = true
	ps, ok := c.prepared[m.PreparedStatement]
	if !ok {
		return yamlerr.New(yamlerr.KindNotFound, "prepared statement %q does not exist", m.PreparedStatement)
	}

	params, err := decodeBindParams(ps.paramOIDs, m.ParameterFormatCodes, m.Parameters)
	if err != nil {
		return yamlerr.Wrap(yamlerr.KindProtocol, err, "decoding bind parameters")
	}

	c.portals[m.DestinationPortal] = &portal{
		stmt:          ps,
		params:        params,
		resultFormats: append([]int16(nil), m.ResultFormatCodes...),
	}
	c.backend.Send(&pgproto3.BindComplete{})
	return c.backend.Flush()
}

// handleDescribe implements spec.md §4.6's describe(): it speculatively
// executes the statement with NULL parameters to discover the result
// column types, since this engine has no separate static type-inference
// pass and every statement is a side-effect-free SELECT.
func (c *conn) handleDescribe(m *pgproto3.Describe) error {
	c.waitForSync = true

	var ps *preparedStatement
	var sendParamDesc bool
	if m.ObjectType == 'S' {
		found, ok := c.prepared[m.Name]
		if !ok {
			return yamlerr.New(yamlerr.KindNotFound, "prepared statement %q does not exist", m.Name)
		}
		ps = found
		sendParamDesc = true
	} else {
		found, ok := c.portals[m.Name]
		if !ok {
			return yamlerr.New(yamlerr.KindNotFound, "portal %q does not exist", m.Name)
		}
		ps = found.stmt
	}

	nparams := countParams(ps.sql)
	if sendParamDesc {
		oids := make([]uint32, nparams)
		for i := range oids {
			if i < len(ps.paramOIDs) && ps.paramOIDs[i] != 0 {
				oids[i] = ps.paramOIDs[i]
			} else {
				oids[i] = oidText
			}
		}
		c.backend.Send(&pgproto3.ParameterDescription{ParameterOIDs: oids})
	}

	snap := c.storage.Snapshot()
	x := exec.New(snap, c.storage)
	params := make([]value.Value, nparams)
	for i := range params {
		params[i] = value.NewNull()
	}
	x.SetParams(params)

	res, err := x.Execute(ps.stmt)
	if err != nil {
		c.backend.Send(&pgproto3.NoData{})
		return c.backend.Flush()
	}
	c.backend.Send(&pgproto3.RowDescription{Fields: fieldsForResult(res)})
	return c.backend.Flush()
}

// handleExecute implements spec.md §4.6's execute(); RowDescription is
// never resent here since a prior Describe already sent it.
func (c *conn) handleExecute(m *pgproto3.Execute) error {
	c.waitForSync = true
	p, ok := c.portals[m.Portal]
	if !ok {
		return yamlerr.New(yamlerr.KindNotFound, "portal %q does not exist", m.Portal)
	}

	snap := c.storage.Snapshot()
	x := exec.New(snap, c.storage)
	x.SetParams(p.params)
	res, err := x.Execute(p.stmt.stmt)
	if err != nil {
		return err
	}

	for _, row := range res.Rows {
		vals := make([][]byte, len(row))
		for i, v := range row {
			if formatCodeAt(p.resultFormats, i) == 1 {
				vals[i] = encodeBinary(v)
			} else {
				vals[i] = encodeText(v)
			}
		}
		c.backend.Send(&pgproto3.DataRow{Values: vals})
	}
	c.backend.Send(&pgproto3.CommandComplete{CommandTag: []byte(res.Tag)})
	return c.backend.Flush()
}

func fieldsForResult(res *exec.Result) []pgproto3.FieldDescription {
	fields := make([]pgproto3.FieldDescription, len(res.Columns))
	for i, name := range res.Columns {
		oid := uint32(oidText)
		if len(res.Rows) > 0 {
			oid = oidForValue(res.Rows[0][i])
		}
		fields[i] = pgproto3.FieldDescription{
			Name:         []byte(name),
			DataTypeOID:  oid,
			DataTypeSize: -1,
			TypeModifier: -1,
			Format:       0,
		}
	}
	return fields
}

var paramTokenRe = regexp.MustCompile(`\$(\d+)`)

// countParams returns the highest $N placeholder index referenced in sql.
func countParams(sql string) int {
	max := 0
	for _, m := range paramTokenRe.FindAllStringSubmatch(sql, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}
	return max
}

// discardToSync implements spec.md §4.7's extended-batch error recovery:
// "an error between Parse and Sync must cause the rest of the extended
// batch to be skipped until Sync."
func (c *conn) discardToSync() error {
	for {
		msg, err := c.backend.Receive()
		if err != nil {
			return err
		}
		if _, ok := msg.(*pgproto3.Sync); ok {
			c.waitForSync = false
			return nil
		}
	}
}

func (c *conn) endOfMessages(err error) {
	if err != nil {
		c.sendError(err)
	}
	c.backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
	if ferr := c.backend.Flush(); ferr != nil {
		logrus.WithError(ferr).Debug("pgserver: flush failed sending ReadyForQuery")
	}
}

func (c *conn) sendError(err error) {
	e := yamlerr.AsError(err)
	logrus.WithError(err).Debug("pgserver: query error")
	c.backend.Send(&pgproto3.ErrorResponse{
		Severity: "ERROR",
		Code:     e.Kind.SQLState(),
		Message:  e.Message,
	})
}

// --- bind parameter decoding (spec.md §4.6) ---

func decodeBindParams(oids []uint32, formats []int16, raw [][]byte) ([]value.Value, error) {
	out := make([]value.Value, len(raw))
	for i, b := range raw {
		if b == nil {
			out[i] = value.NewNull()
			continue
		}
		v, err := decodeBindParam(oidAt(oids, i), formatCodeAt(formats, i), b)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func oidAt(oids []uint32, i int) uint32 {
	if i < len(oids) {
		return oids[i]
	}
	return 0
}

func formatCodeAt(formats []int16, i int) int16 {
	switch len(formats) {
	case 0:
		return 0
	case 1:
		return formats[0]
	default:
		if i < len(formats) {
			return formats[i]
		}
		return 0
	}
}

func decodeBindParam(oid uint32, format int16, raw []byte) (value.Value, error) {
	if format == 1 {
		return decodeBinaryParam(oid, raw)
	}
	return decodeTextParam(oid, raw)
}

// decodeBinaryParam implements the binary layouts named in spec.md
// §4.6: INT2/4/8 big-endian, FLOAT4/8 IEEE big-endian, BOOL single byte,
// otherwise UTF-8 text.
func decodeBinaryParam(oid uint32, raw []byte) (value.Value, error) {
	switch oid {
	case oidBool:
		if len(raw) != 1 {
			return value.Value{}, fmt.Errorf("malformed boolean parameter")
		}
		return value.NewBoolean(raw[0] != 0), nil
	case 21: // int2
		if len(raw) != 2 {
			return value.Value{}, fmt.Errorf("malformed int2 parameter")
		}
		return value.NewInteger(int64(int16(binary.BigEndian.Uint16(raw)))), nil
	case oidInt4:
		if len(raw) != 4 {
			return value.Value{}, fmt.Errorf("malformed int4 parameter")
		}
		return value.NewInteger(int64(int32(binary.BigEndian.Uint32(raw)))), nil
	case oidInt8:
		if len(raw) != 8 {
			return value.Value{}, fmt.Errorf("malformed int8 parameter")
		}
		return value.NewInteger(int64(binary.BigEndian.Uint64(raw))), nil
	case oidFloat4:
		if len(raw) != 4 {
			return value.Value{}, fmt.Errorf("malformed float4 parameter")
		}
		return value.NewFloat(math.Float32frombits(binary.BigEndian.Uint32(raw))), nil
	case oidFloat8:
		if len(raw) != 8 {
			return value.Value{}, fmt.Errorf("malformed float8 parameter")
		}
		return value.NewDouble(math.Float64frombits(binary.BigEndian.Uint64(raw))), nil
	default:
		return value.NewText(string(raw)), nil
	}
}

func decodeTextParam(oid uint32, raw []byte) (value.Value, error) {
	s := string(raw)
	switch oid {
	case oidBool:
		return parseBoolText(s)
	case oidInt4, oidInt8:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return value.Value{}, fmt.Errorf("malformed integer parameter %q", s)
		}
		return value.NewInteger(n), nil
	case oidFloat4:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
		if err != nil {
			return value.Value{}, fmt.Errorf("malformed float parameter %q", s)
		}
		return value.NewFloat(float32(f)), nil
	case oidFloat8:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return value.Value{}, fmt.Errorf("malformed double parameter %q", s)
		}
		return value.NewDouble(f), nil
	case oidNumeric:
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return value.Value{}, fmt.Errorf("malformed decimal parameter %q", s)
		}
		return value.NewDecimal(d), nil
	case oidDate:
		t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
		if err != nil {
			return value.Value{}, fmt.Errorf("malformed date parameter %q", s)
		}
		return value.NewDate(t), nil
	case oidTime:
		t, err := time.Parse("15:04:05", strings.TrimSpace(s))
		if err != nil {
			return value.Value{}, fmt.Errorf("malformed time parameter %q", s)
		}
		return value.NewTime(t), nil
	case oidTimestamp:
		return parseTimestampParam(s)
	case oidUUID:
		u, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return value.Value{}, fmt.Errorf("malformed uuid parameter %q", s)
		}
		return value.NewUUID(u), nil
	case oidJson:
		return value.NewJson(json.RawMessage(raw)), nil
	case oidText, oidVarchar:
		return value.NewText(s), nil
	default:
		return inferUntypedParam(s), nil
	}
}

// inferUntypedParam handles a client that sends a parameter with OID 0
// (type left to the server to infer), matching how an untyped literal
// would be interpreted in the same expression position.
func inferUntypedParam(s string) value.Value {
	trimmed := strings.TrimSpace(s)
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return value.NewInteger(n)
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return value.NewDouble(f)
	}
	return value.NewText(s)
}

func parseBoolText(s string) (value.Value, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "t", "true", "1", "yes":
		return value.NewBoolean(true), nil
	case "f", "false", "0", "no":
		return value.NewBoolean(false), nil
	default:
		return value.Value{}, fmt.Errorf("malformed boolean parameter %q", s)
	}
}

func parseTimestampParam(s string) (value.Value, error) {
	trimmed := strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return value.NewTimestamp(t), nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05", trimmed); err == nil {
		return value.NewTimestamp(t), nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", trimmed); err == nil {
		return value.NewTimestamp(t), nil
	}
	return value.Value{}, fmt.Errorf("malformed timestamp parameter %q", s)
}
