// Package timeparse converts free-form time expressions such as
// "2 hrs 15 mins", "0.75 hours" or "1 hour and 30 minutes" into the
// scheduling decimal used across taskcal.
//
// A scheduling decimal is written H.MM: the integer part counts hours and the
// two fractional digits count minutes, so 1.30 is one hour thirty minutes,
// not one and three tenths of an hour.
package timeparse

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrEmpty is returned when the input holds nothing but whitespace.
	ErrEmpty = errors.New("empty duration")
	// ErrNoDuration is returned when no strategy recognises a duration.
	ErrNoDuration = errors.New("no duration found")
	// ErrOutOfBounds is returned by Bounds.Check.
	ErrOutOfBounds = errors.New("duration out of bounds")
)

// Duration is a whole number of minutes.
type Duration struct {
	Minutes int
}

// FromStd converts a time.Duration, rounding to the nearest minute.
func FromStd(d time.Duration) Duration {
	return Duration{Minutes: int(d.Round(time.Minute) / time.Minute)}
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d.Minutes) * time.Minute
}

// Format renders the canonical H.MM scheduling decimal.
func (d Duration) Format() string {
	return fmt.Sprintf("%d.%02d", d.Minutes/60, d.Minutes%60)
}

func (d Duration) String() string {
	return d.Format()
}

// Bounds is the accepted range for an estimate.
type Bounds struct {
	Min time.Duration
	Max time.Duration
}

// DefaultBounds accepts anything from five minutes to a full day.
var DefaultBounds = Bounds{Min: 5 * time.Minute, Max: 24 * time.Hour}

// Check reports whether d falls inside b. A zero Max means no upper limit.
// The comparison is done in minutes so that huge values cannot wrap.
func (b Bounds) Check(d Duration) error {
	v := float64(d.Minutes)
	if v < b.Min.Minutes() {
		return fmt.Errorf("%w: %s is below the minimum of %s", ErrOutOfBounds, d.Format(), FromStd(b.Min).Format())
	}
	if b.Max > 0 && v > b.Max.Minutes() {
		return fmt.Errorf("%w: %s exceeds the maximum of %s", ErrOutOfBounds, d.Format(), FromStd(b.Max).Format())
	}
	return nil
}

// Normalize parses s, checks it against b and returns the H.MM form.
func Normalize(s string, b Bounds) (string, Duration, error) {
	d, err := Parse(s)
	if err != nil {
		return "", Duration{}, err
	}
	if err := b.Check(d); err != nil {
		return "", d, err
	}
	return d.Format(), d, nil
}

// MaxMinutes is the largest duration Parse accepts. It keeps every parsed
// value inside the range of time.Duration.
const MaxMinutes = 100_000_000

// errNoMatch tells Parse to try the next strategy.
var errNoMatch = errors.New("no match")

// strategy returns minutes, errNoMatch when it does not recognise the input,
// or any other error to stop parsing.
type strategy func(s string) (float64, error)

var strategies = []strategy{
	parseUnits,
	parseClock,
	parseSchedulingDecimal,
	parseBareDecimal,
}

// Parse extracts the first duration found in s.
func Parse(s string) (Duration, error) {
	s = prepare(s)
	if s == "" {
		return Duration{}, ErrEmpty
	}
	for _, try := range strategies {
		v, err := try(s)
		if errors.Is(err, errNoMatch) {
			continue
		}
		if err != nil {
			return Duration{}, err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v > MaxMinutes {
			return Duration{}, fmt.Errorf("%w: %q is too large", ErrOutOfBounds, truncate(s, 80))
		}
		return Duration{Minutes: roundMinutes(v)}, nil
	}
	return Duration{}, fmt.Errorf("%w in %q", ErrNoDuration, truncate(s, 80))
}

// negative reports whether the quantity starting at i carries a minus sign.
// A dash glued to a preceding word or number is a range or hyphen, not a sign.
func negative(s string, i int) bool {
	if i == 0 || s[i-1] != '-' {
		return false
	}
	if i == 1 {
		return true
	}
	c := s[i-2]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '.')
}

func negativeErr(s string) error {
	return fmt.Errorf("%w: negative quantity in %q", ErrNoDuration, truncate(s, 80))
}

var (
	letterDigit = regexp.MustCompile(`([a-z])(\d)`)
	phrases     = strings.NewReplacer(
		"an hour and a half", "90 minutes",
		"half an hour", "30 minutes",
		"a half hour", "30 minutes",
		"quarter of an hour", "15 minutes",
		"an hour", "1 hour",
	)
)

// prepare lowercases, expands idioms and splits compact forms like "1h30m"
// so that unit suffixes end on a word boundary.
func prepare(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = phrases.Replace(s)
	return letterDigit.ReplaceAllString(s, "$1 $2")
}

const number = `\d+(?:\.\d+)?`

var (
	// An optional leading "2 -" or "2 to" turns the quantity into a range;
	// the upper bound is kept.
	unitRe = regexp.MustCompile(`(?:(` + number + `)\s*(?:-|–|to)\s*)?(` + number + `)\s*(hours|hour|hrs|hr|h|minutes|minute|mins|min|m)\b`)
	// Abbreviations may end in a period: "1 hr. 30 min".
	joinRe  = regexp.MustCompile(`^(?:\s|\.|,|&|and|\+)*$`)
	rangeRe = regexp.MustCompile(`^\.?\s*(?:-|–|to)\s*$`)
)

// parseUnits handles hour and minute quantities, alone or combined.
// Hour quantities may be decimal ("0.75 hours"). Two quantities joined by
// "-" or "to" form a range and the upper bound is kept.
func parseUnits(s string) (float64, error) {
	matches := unitRe.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return 0, errNoMatch
	}
	if negative(s, matches[0][0]) {
		return 0, negativeErr(s)
	}

	total, used, ok := unitComponent(s, matches)
	if !ok {
		return 0, errNoMatch
	}
	if used < len(matches) && rangeRe.MatchString(s[matches[used-1][1]:matches[used][0]]) {
		if upper, _, ok := unitComponent(s, matches[used:]); ok && upper > total {
			total = upper
		}
	}
	return total, nil
}

// unitComponent reads an hours quantity optionally followed by minutes, or a
// lone minutes quantity, from the start of matches. It returns the minutes and
// how many matches it consumed.
func unitComponent(s string, matches [][]int) (float64, int, bool) {
	total, isHours, ok := unitMinutes(s, matches[0])
	if !ok {
		return 0, 0, false
	}
	if !isHours || len(matches) < 2 {
		return total, 1, true
	}
	next := matches[1]
	if !joinRe.MatchString(s[matches[0][1]:next[0]]) {
		return total, 1, true
	}
	if mins, nextHours, ok := unitMinutes(s, next); ok && !nextHours {
		return total + mins, 2, true
	}
	return total, 1, true
}

func unitMinutes(s string, m []int) (float64, bool, bool) {
	qty, err := strconv.ParseFloat(s[m[4]:m[5]], 64)
	if err != nil {
		return 0, false, false
	}
	if strings.HasPrefix(s[m[6]:m[7]], "h") {
		return qty * 60, true, true
	}
	return qty, false, true
}

var clockRe = regexp.MustCompile(`\b(\d{1,2}):([0-5]\d)\b`)

// parseClock handles H:MM.
func parseClock(s string) (float64, error) {
	m := clockRe.FindStringSubmatchIndex(s)
	if m == nil {
		return 0, errNoMatch
	}
	if negative(s, m[2]) {
		return 0, negativeErr(s)
	}
	h, _ := strconv.Atoi(s[m[2]:m[3]])
	mins, _ := strconv.Atoi(s[m[4]:m[5]])
	return float64(h*60 + mins), nil
}

var (
	schedRe = regexp.MustCompile(`(?:^|[^\d.])(\d+)\.(\d{2})(?:$|[^\d])`)
	bareRe  = regexp.MustCompile(number)
)

// parseSchedulingDecimal accepts an already canonical H.MM value.
func parseSchedulingDecimal(s string) (float64, error) {
	m := schedRe.FindStringSubmatchIndex(s)
	if m == nil {
		return 0, errNoMatch
	}
	mins, _ := strconv.Atoi(s[m[4]:m[5]])
	if mins >= 60 {
		return 0, errNoMatch
	}
	if negative(s, m[2]) {
		return 0, negativeErr(s)
	}
	h, err := strconv.ParseFloat(s[m[2]:m[3]], 64)
	if err != nil {
		return 0, errNoMatch
	}
	return h*60 + float64(mins), nil
}

// parseBareDecimal treats a unitless number as decimal hours.
func parseBareDecimal(s string) (float64, error) {
	m := bareRe.FindStringIndex(s)
	if m == nil {
		return 0, errNoMatch
	}
	if negative(s, m[0]) {
		return 0, negativeErr(s)
	}
	v, err := strconv.ParseFloat(s[m[0]:m[1]], 64)
	if err != nil {
		return 0, errNoMatch
	}
	return v * 60, nil
}

// roundMinutes rounds half up.
func roundMinutes(v float64) int {
	return int(math.Floor(v + 0.5))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
