// Package tspattern recognizes and formats the timestamp at the head of a
// log line. The set of known patterns is an explicit value passed into the
// writer and reader rather than a process-wide table.
package tspattern

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gftdcojp/logvault/internal/types"
)

// Pattern describes one timestamp layout: the number of spaces preceding
// the timestamp and a strftime-style format string.
//
// Supported specifiers: %Y %y %m %d %e %H %M %S %3 %b %a, plus literal
// characters. %3 is milliseconds; %e is a space-padded day of month.
type Pattern struct {
	NumSpacesBeforeTs int
	Format            string
}

// IsEmpty reports whether the pattern is the "no timestamp" sentinel.
func (p Pattern) IsEmpty() bool {
	return p.Format == ""
}

// String encodes the pattern as "num_spaces:format" for metadata rows.
func (p Pattern) String() string {
	return strconv.Itoa(p.NumSpacesBeforeTs) + ":" + p.Format
}

var shortMonths = []string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

var shortDays = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Parse attempts to match the pattern at the head of line. On success it
// returns the parsed timestamp and the byte range [begin, end) the
// timestamp occupied.
func (p Pattern) Parse(line string) (ts types.Epochtime, begin, end int, ok bool) {
	pos := 0
	for i := 0; i < p.NumSpacesBeforeTs; i++ {
		if pos >= len(line) || line[pos] != ' ' {
			return 0, 0, 0, false
		}
		pos++
	}
	begin = pos

	year, month, day := 1970, 1, 1
	hour, minute, sec, msec := 0, 0, 0, 0

	f := p.Format
	for fi := 0; fi < len(f); fi++ {
		if f[fi] != '%' {
			if pos >= len(line) || line[pos] != f[fi] {
				return 0, 0, 0, false
			}
			pos++
			continue
		}
		fi++
		if fi >= len(f) {
			return 0, 0, 0, false
		}
		var err error
		switch f[fi] {
		case 'Y':
			year, pos, err = parseFixedInt(line, pos, 4)
		case 'y':
			var yy int
			yy, pos, err = parseFixedInt(line, pos, 2)
			if err == nil {
				if yy < 69 {
					year = 2000 + yy
				} else {
					year = 1900 + yy
				}
			}
		case 'm':
			month, pos, err = parseFixedInt(line, pos, 2)
		case 'd':
			day, pos, err = parseFixedInt(line, pos, 2)
		case 'e':
			if pos < len(line) && line[pos] == ' ' {
				day, pos, err = parseFixedInt(line, pos+1, 1)
			} else {
				day, pos, err = parseFixedInt(line, pos, 2)
			}
		case 'H':
			hour, pos, err = parseFixedInt(line, pos, 2)
		case 'M':
			minute, pos, err = parseFixedInt(line, pos, 2)
		case 'S':
			sec, pos, err = parseFixedInt(line, pos, 2)
		case '3':
			msec, pos, err = parseFixedInt(line, pos, 3)
		case 'b':
			month, pos, err = parseName(line, pos, shortMonths)
		case 'a':
			_, pos, err = parseName(line, pos, shortDays)
		case '%':
			if pos >= len(line) || line[pos] != '%' {
				return 0, 0, 0, false
			}
			pos++
		default:
			return 0, 0, 0, false
		}
		if err != nil {
			return 0, 0, 0, false
		}
	}
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 ||
		minute > 59 || sec > 60 {
		return 0, 0, 0, false
	}

	t := time.Date(year, time.Month(month), day, hour, minute, sec, msec*int(time.Millisecond), time.UTC)
	return types.Epochtime(t.UnixMilli()), begin, pos, true
}

// Insert formats ts with the pattern and splices it into msg at the
// position the timestamp originally occupied, reproducing the raw line.
func (p Pattern) Insert(ts types.Epochtime, msg string) string {
	if p.IsEmpty() {
		return msg
	}
	var b strings.Builder
	for i := 0; i < p.NumSpacesBeforeTs; i++ {
		b.WriteByte(' ')
	}
	t := time.UnixMilli(int64(ts)).UTC()

	f := p.Format
	for fi := 0; fi < len(f); fi++ {
		if f[fi] != '%' {
			b.WriteByte(f[fi])
			continue
		}
		fi++
		if fi >= len(f) {
			break
		}
		switch f[fi] {
		case 'Y':
			fmt.Fprintf(&b, "%04d", t.Year())
		case 'y':
			fmt.Fprintf(&b, "%02d", t.Year()%100)
		case 'm':
			fmt.Fprintf(&b, "%02d", int(t.Month()))
		case 'd':
			fmt.Fprintf(&b, "%02d", t.Day())
		case 'e':
			fmt.Fprintf(&b, "%2d", t.Day())
		case 'H':
			fmt.Fprintf(&b, "%02d", t.Hour())
		case 'M':
			fmt.Fprintf(&b, "%02d", t.Minute())
		case 'S':
			fmt.Fprintf(&b, "%02d", t.Second())
		case '3':
			fmt.Fprintf(&b, "%03d", t.Nanosecond()/int(time.Millisecond))
		case 'b':
			b.WriteString(shortMonths[int(t.Month())-1])
		case 'a':
			b.WriteString(shortDays[int(t.Weekday())])
		case '%':
			b.WriteByte('%')
		}
	}
	b.WriteString(msg)
	return b.String()
}

func parseFixedInt(s string, pos, width int) (int, int, error) {
	if pos+width > len(s) {
		return 0, pos, types.ErrTruncated
	}
	v := 0
	for i := 0; i < width; i++ {
		c := s[pos+i]
		if c < '0' || c > '9' {
			return 0, pos, types.ErrBadParam
		}
		v = v*10 + int(c-'0')
	}
	return v, pos + width, nil
}

func parseName(s string, pos int, names []string) (int, int, error) {
	for i, n := range names {
		if strings.HasPrefix(s[pos:], n) {
			return i + 1, pos + len(n), nil
		}
	}
	return 0, pos, types.ErrBadParam
}

// Set is the collection of timestamp patterns a writer or reader knows
// about. Construct with DefaultSet (or a custom list) and pass it in; there
// is no package-level singleton.
type Set struct {
	patterns []Pattern
}

// NewSet builds a pattern set from an explicit list.
func NewSet(patterns []Pattern) *Set {
	return &Set{patterns: patterns}
}

// DefaultSet returns the patterns for common logging formats.
func DefaultSet() *Set {
	return NewSet([]Pattern{
		{0, "%Y-%m-%dT%H:%M:%S.%3"},
		{0, "%Y-%m-%d %H:%M:%S.%3"},
		{0, "%Y-%m-%dT%H:%M:%S"},
		{0, "%Y-%m-%d %H:%M:%S"},
		{0, "%Y/%m/%d %H:%M:%S"},
		{0, "[%Y-%m-%d %H:%M:%S.%3]"},
		{0, "[%Y-%m-%d %H:%M:%S]"},
		{0, "%b %e %H:%M:%S"},
		{0, "%a %b %e %H:%M:%S %Y"},
	})
}

// Search tries every known pattern against the head of line and returns
// the first match along with the timestamp's byte range.
func (s *Set) Search(line string) (ts types.Epochtime, p Pattern, begin, end int, ok bool) {
	for _, cand := range s.patterns {
		if ts, begin, end, ok = cand.Parse(line); ok {
			return ts, cand, begin, end, true
		}
	}
	return 0, Pattern{}, 0, 0, false
}

// ParseEncoded decodes a "num_spaces:format" pattern produced by
// Pattern.String.
func ParseEncoded(enc string) (Pattern, error) {
	ix := strings.IndexByte(enc, ':')
	if ix < 0 {
		return Pattern{}, fmt.Errorf("%w: timestamp pattern %q", types.ErrBadParam, enc)
	}
	n, err := strconv.Atoi(enc[:ix])
	if err != nil {
		return Pattern{}, fmt.Errorf("%w: timestamp pattern %q", types.ErrBadParam, enc)
	}
	return Pattern{NumSpacesBeforeTs: n, Format: enc[ix+1:]}, nil
}
