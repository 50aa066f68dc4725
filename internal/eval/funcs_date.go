package eval

import (
	"strings"
	"time"

	"github.com/yamldb/yamldb/internal/value"
	"github.com/yamldb/yamldb/internal/yamlerr"
)

func truncDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// asTime accepts Date/Timestamp/Time Values directly, and also Text per
// spec.md §4.4 ("YEAR/MONTH/DAY also accept text").
func asTime(v value.Value) (time.Time, error) {
	switch v.Kind {
	case value.Date, value.Timestamp, value.Time:
		return v.Time, nil
	case value.Text:
		s := strings.TrimSpace(v.Str)
		for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, yamlerr.New(yamlerr.KindType, "cannot parse %q as a date/time", v.Str)
	default:
		return time.Time{}, yamlerr.New(yamlerr.KindType, "expected date/time argument, got %s", v.Kind)
	}
}

func dateFunc(args []value.Value) (value.Value, error) {
	if anyNull(args) {
		return value.NewNull(), nil
	}
	t, err := asTime(args[0])
	if err != nil {
		return value.Value{}, err
	}
	return value.NewDate(truncDate(t)), nil
}

func dateParts(args []value.Value, extract func(time.Time) value.Value) (value.Value, error) {
	if anyNull(args) {
		return value.NewNull(), nil
	}
	t, err := asTime(args[0])
	if err != nil {
		return value.Value{}, err
	}
	return extract(t), nil
}

func extractFunc(args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, yamlerr.New(yamlerr.KindType, "EXTRACT requires a field and a date")
	}
	if anyNull(args) {
		return value.NewNull(), nil
	}
	field, err := asText(args[0])
	if err != nil {
		return value.Value{}, err
	}
	t, err := asTime(args[1])
	if err != nil {
		return value.Value{}, err
	}
	switch strings.ToUpper(field) {
	case "YEAR":
		return value.NewInteger(int64(t.Year())), nil
	case "MONTH":
		return value.NewInteger(int64(t.Month())), nil
	case "DAY":
		return value.NewInteger(int64(t.Day())), nil
	default:
		return value.Value{}, yamlerr.NotImplemented("EXTRACT field %q", field)
	}
}

func dateFormat(args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, yamlerr.New(yamlerr.KindType, "DATE_FORMAT requires a date and a format")
	}
	if anyNull(args) {
		return value.NewNull(), nil
	}
	t, err := asTime(args[0])
	if err != nil {
		return value.Value{}, err
	}
	format, err := asText(args[1])
	if err != nil {
		return value.Value{}, err
	}
	return value.NewText(translateMySQLFormat(t, format)), nil
}

// translateMySQLFormat supports the handful of DATE_FORMAT specifiers
// the scalar function table in spec.md §4.4 exercises.
func translateMySQLFormat(t time.Time, format string) string {
	replacer := strings.NewReplacer(
		"%Y", t.Format("2006"),
		"%y", t.Format("06"),
		"%m", t.Format("01"),
		"%d", t.Format("02"),
		"%H", t.Format("15"),
		"%i", t.Format("04"),
		"%s", t.Format("05"),
	)
	return replacer.Replace(format)
}

// addUnit returns t shifted by n of the given date-part unit, for the
// units recognized by DATE_ADD/DATE_SUB/DATEADD.
func addUnit(t time.Time, unit string, n int) (time.Time, error) {
	switch strings.ToUpper(unit) {
	case "YEAR":
		return t.AddDate(n, 0, 0), nil
	case "MONTH":
		return addMonthsClamped(t, n), nil
	case "WEEK":
		return t.AddDate(0, 0, 7*n), nil
	case "DAY":
		return t.AddDate(0, 0, n), nil
	default:
		return time.Time{}, yamlerr.NotImplemented("date unit %q", unit)
	}
}

// addMonthsClamped adds n months, clamping the day-of-month to the
// target month's last day (so Jan 31 + 1 month = Feb 28/29, never
// rolling into March), matching ADD_MONTHS's documented clamp behavior.
func addMonthsClamped(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	total := int(month) - 1 + n
	newYear := year + total/12
	newMonth := total % 12
	if newMonth < 0 {
		newMonth += 12
		newYear--
	}
	firstOfMonth := time.Date(newYear, time.Month(newMonth+1), 1, t.Hour(), t.Minute(), t.Second(), 0, t.Location())
	lastDayOfMonth := firstOfMonth.AddDate(0, 1, -1).Day()
	if day > lastDayOfMonth {
		day = lastDayOfMonth
	}
	return time.Date(newYear, time.Month(newMonth+1), day, t.Hour(), t.Minute(), t.Second(), 0, t.Location())
}

func dateAddSub(args []value.Value, sign int) (value.Value, error) {
	if len(args) != 3 {
		return value.Value{}, yamlerr.New(yamlerr.KindType, "DATE_ADD/DATE_SUB require (date, n, unit)")
	}
	if anyNull(args) {
		return value.NewNull(), nil
	}
	t, err := asTime(args[0])
	if err != nil {
		return value.Value{}, err
	}
	n, err := asInt(args[1])
	if err != nil {
		return value.Value{}, err
	}
	unit, err := asText(args[2])
	if err != nil {
		return value.Value{}, err
	}
	out, err := addUnit(t, unit, sign*int(n))
	if err != nil {
		return value.Value{}, err
	}
	return wrapLikeOrigin(args[0], out), nil
}

// dateaddStyle implements DATEADD(unit, n, date) — same semantics as
// DATE_ADD but with the unit first, matching SQL Server-flavored callers.
func dateaddStyle(args []value.Value, sign int) (value.Value, error) {
	if len(args) != 3 {
		return value.Value{}, yamlerr.New(yamlerr.KindType, "DATEADD requires (unit, n, date)")
	}
	if anyNull(args) {
		return value.NewNull(), nil
	}
	unit, err := asText(args[0])
	if err != nil {
		return value.Value{}, err
	}
	n, err := asInt(args[1])
	if err != nil {
		return value.Value{}, err
	}
	t, err := asTime(args[2])
	if err != nil {
		return value.Value{}, err
	}
	out, err := addUnit(t, unit, sign*int(n))
	if err != nil {
		return value.Value{}, err
	}
	return wrapLikeOrigin(args[2], out), nil
}

func datediff(args []value.Value) (value.Value, error) {
	if len(args) != 3 {
		return value.Value{}, yamlerr.New(yamlerr.KindType, "DATEDIFF requires (unit, a, b)")
	}
	if anyNull(args) {
		return value.NewNull(), nil
	}
	unit, err := asText(args[0])
	if err != nil {
		return value.Value{}, err
	}
	a, err := asTime(args[1])
	if err != nil {
		return value.Value{}, err
	}
	b, err := asTime(args[2])
	if err != nil {
		return value.Value{}, err
	}
	days := int64(b.Sub(a).Hours() / 24)
	switch strings.ToUpper(unit) {
	case "DAY":
		return value.NewInteger(days), nil
	case "WEEK":
		return value.NewInteger(days / 7), nil
	case "MONTH":
		months := int64(b.Year()-a.Year())*12 + int64(b.Month()-a.Month())
		return value.NewInteger(months), nil
	case "YEAR":
		return value.NewInteger(int64(b.Year() - a.Year())), nil
	default:
		return value.Value{}, yamlerr.NotImplemented("DATEDIFF unit %q", unit)
	}
}

func addMonths(args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, yamlerr.New(yamlerr.KindType, "ADD_MONTHS requires (date, n)")
	}
	if anyNull(args) {
		return value.NewNull(), nil
	}
	t, err := asTime(args[0])
	if err != nil {
		return value.Value{}, err
	}
	n, err := asInt(args[1])
	if err != nil {
		return value.Value{}, err
	}
	return wrapLikeOrigin(args[0], addMonthsClamped(t, int(n))), nil
}

func lastDay(args []value.Value) (value.Value, error) {
	if anyNull(args) {
		return value.NewNull(), nil
	}
	t, err := asTime(args[0])
	if err != nil {
		return value.Value{}, err
	}
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
	return value.NewDate(firstOfNext.AddDate(0, 0, -1)), nil
}

// wrapLikeOrigin re-wraps a computed time.Time in the same Date/
// Timestamp/Time Kind as the Value it was derived from.
func wrapLikeOrigin(orig value.Value, t time.Time) value.Value {
	switch orig.Kind {
	case value.Timestamp:
		return value.NewTimestamp(t)
	case value.Time:
		return value.NewTime(t)
	default:
		return value.NewDate(t)
	}
}
