// Package datefmt renders epoch timestamps the way the live view page shows
// them: zero-padded ISO fields or CLDR locale patterns, always in local time.
package datefmt

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/locales"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/nb"
	"github.com/go-playground/locales/nn"
	"golang.org/x/text/language"
)

// Mode selects an output format. Values match the fix_<mode> class suffixes
// used by page fragments.
type Mode string

const (
	ISODate          Mode = "iso_date"
	ISOTime          Mode = "iso_time"
	ISODateTime      Mode = "iso_datetime"
	LocalDate        Mode = "local_date"
	LocalTime        Mode = "local_time"
	LocalDateTime    Mode = "local_datetime"
	LocalDateISOTime Mode = "local_date_iso_time"
)

// Modes lists every mode in the order the page pipeline applies them.
var Modes = []Mode{
	ISODate, ISOTime, ISODateTime,
	LocalDate, LocalTime, LocalDateTime,
	LocalDateISOTime,
}

const (
	isoDateLayout = "2006-01-02"
	isoTimeLayout = "15:04:05"
)

// cldr maps a language base to its CLDR calendar data.
var cldr = map[string]func() locales.Translator{
	"en": en.New,
	"no": nb.New,
	"nb": nb.New,
	"nn": nn.New,
}

// Layouts used for languages without CLDR data.
const (
	fallbackDateLayout = "1/2/2006"
	fallbackTimeLayout = "3:04:05 PM"
)

// Formatter formats timestamps for one language and location.
type Formatter struct {
	Lang     language.Tag
	Location *time.Location
}

// New returns a Formatter. A nil location means time.Local.
func New(lang language.Tag, loc *time.Location) Formatter {
	if loc == nil {
		loc = time.Local
	}
	return Formatter{Lang: lang, Location: loc}
}

// ParseEpoch parses a data-epoch attribute value. Fractional seconds are
// accepted.
func ParseEpoch(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// FromEpoch converts epoch seconds to a time truncated to milliseconds.
func FromEpoch(epoch float64) time.Time {
	return time.UnixMilli(int64(math.Floor(epoch * 1000)))
}

// Format renders epoch seconds in the given mode. Unknown modes render as an
// empty string.
func (f Formatter) Format(epoch float64, mode Mode) string {
	return f.Time(FromEpoch(epoch), mode)
}

// Time renders t in the given mode.
func (f Formatter) Time(t time.Time, mode Mode) string {
	loc := f.Location
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	localDate, localTime := f.locale()

	switch mode {
	case ISODateTime:
		return t.Format(isoDateLayout + " " + isoTimeLayout)
	case ISOTime:
		return t.Format(isoTimeLayout)
	case ISODate:
		return t.Format(isoDateLayout)
	case LocalDate:
		return localDate(t)
	case LocalTime:
		return localTime(t)
	case LocalDateTime:
		return localDate(t) + " " + localTime(t)
	case LocalDateISOTime:
		return localDate(t) + " " + t.Format(isoTimeLayout)
	}
	return ""
}

// locale returns the short date and medium time formatters for f.Lang.
func (f Formatter) locale() (date, clock func(time.Time) string) {
	base, _ := f.Lang.Base()
	if newLocale, ok := cldr[base.String()]; ok {
		l := newLocale()
		return l.FmtDateShort, l.FmtTimeMedium
	}
	return func(t time.Time) string { return t.Format(fallbackDateLayout) },
		func(t time.Time) string { return t.Format(fallbackTimeLayout) }
}
