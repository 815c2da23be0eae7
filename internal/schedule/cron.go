// Package schedule provides a five-field cron expression parser and a
// ticker-driven background job scheduler.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNoUpcomingRun is returned when an expression has no matching minute
// within the scan horizon. It guards against impossible expressions such
// as "0 0 31 2 *".
var ErrNoUpcomingRun = errors.New("no matching run within the scan horizon")

// nextRunHorizon bounds the minute-by-minute forward scan in NextRun.
const nextRunHorizon = 2 * 24 * time.Hour

// fieldBounds holds the valid value range per cron field, in field order:
// minute, hour, day of month, month, day of week.
var fieldBounds = [5][2]int{
	{0, 59},
	{0, 23},
	{1, 31},
	{1, 12},
	{0, 6},
}

var fieldNames = [5]string{"minute", "hour", "day", "month", "weekday"}

// term is one comma-separated element of a cron field.
type term struct {
	star   bool
	lo, hi int // inclusive range; lo == hi for a literal
	step   int // 0 when the term is not a step expression
	base   int // step base; -1 for "*/n"
}

func (t term) matches(value int) bool {
	switch {
	case t.star:
		return true
	case t.step > 0:
		if t.base < 0 {
			return value%t.step == 0
		}
		return value%t.step == t.base%t.step
	default:
		return value >= t.lo && value <= t.hi
	}
}

// Expression is a parsed five-field cron schedule
// (minute hour day month weekday).
type Expression struct {
	raw    string
	fields [5][]term
}

// ParseExpression parses a cron string of five whitespace-separated
// fields, each "*", a literal, a comma list, a range "a-b", or a step
// "*/n" / "base/n" (matching values where value % n == base % n).
func ParseExpression(expr string) (Expression, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return Expression{}, fmt.Errorf("cron expression %q: expected 5 fields, got %d", expr, len(parts))
	}

	parsed := Expression{raw: expr}
	for i, part := range parts {
		terms, err := parseField(part, fieldBounds[i][0], fieldBounds[i][1])
		if err != nil {
			return Expression{}, fmt.Errorf("cron expression %q: %s field: %w", expr, fieldNames[i], err)
		}
		parsed.fields[i] = terms
	}
	return parsed, nil
}

// MustParseExpression is ParseExpression for statically known expressions.
func MustParseExpression(expr string) Expression {
	parsed, err := ParseExpression(expr)
	if err != nil {
		panic(err)
	}
	return parsed
}

// String returns the original expression text.
func (e Expression) String() string {
	return e.raw
}

// IsMatch reports whether the date matches the expression. All five
// fields must match; seconds and smaller units are ignored.
func (e Expression) IsMatch(t time.Time) bool {
	values := [5]int{t.Minute(), t.Hour(), t.Day(), int(t.Month()), int(t.Weekday())}
	for i, terms := range e.fields {
		if !fieldMatches(terms, values[i]) {
			return false
		}
	}
	return true
}

// NextRun scans forward minute by minute from one minute after "from"
// (seconds zeroed) and returns the first matching time. It returns
// ErrNoUpcomingRun when nothing matches within a 2-day horizon.
func (e Expression) NextRun(from time.Time) (time.Time, error) {
	t := from.Truncate(time.Minute).Add(time.Minute)
	deadline := from.Add(nextRunHorizon)
	for !t.After(deadline) {
		if e.IsMatch(t) {
			return t, nil
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrNoUpcomingRun, e.raw)
}

func fieldMatches(terms []term, value int) bool {
	for _, t := range terms {
		if t.matches(value) {
			return true
		}
	}
	return false
}

func parseField(field string, min, max int) ([]term, error) {
	var terms []term
	for _, part := range strings.Split(field, ",") {
		t, err := parseTerm(part, min, max)
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	return terms, nil
}

func parseTerm(part string, min, max int) (term, error) {
	if part == "*" {
		return term{star: true}, nil
	}

	if basePart, stepPart, found := strings.Cut(part, "/"); found {
		step, err := strconv.Atoi(stepPart)
		if err != nil || step <= 0 {
			return term{}, fmt.Errorf("invalid step %q", part)
		}
		if basePart == "*" {
			return term{step: step, base: -1}, nil
		}
		base, err := strconv.Atoi(basePart)
		if err != nil || base < min || base > max {
			return term{}, fmt.Errorf("invalid step base %q", part)
		}
		return term{step: step, base: base}, nil
	}

	if loPart, hiPart, found := strings.Cut(part, "-"); found {
		lo, err := strconv.Atoi(loPart)
		if err != nil {
			return term{}, fmt.Errorf("invalid range %q", part)
		}
		hi, err := strconv.Atoi(hiPart)
		if err != nil {
			return term{}, fmt.Errorf("invalid range %q", part)
		}
		if lo > hi || lo < min || hi > max {
			return term{}, fmt.Errorf("range %q out of bounds %d-%d", part, min, max)
		}
		return term{lo: lo, hi: hi}, nil
	}

	value, err := strconv.Atoi(part)
	if err != nil {
		return term{}, fmt.Errorf("invalid value %q", part)
	}
	if value < min || value > max {
		return term{}, fmt.Errorf("value %d out of bounds %d-%d", value, min, max)
	}
	return term{lo: value, hi: value}, nil
}
