package rule

import (
	"strconv"
	"strings"
)

// Format renders c in canonical rule-language syntax. For any condition
// produced by Compile, Parse(Format(c)) yields a condition equal to c.
//
// Windows are printed in the largest unit that divides them exactly. Nested
// AND/OR terms are always parenthesized. A Within around anything other than
// an event count has no direct syntax; its window is printed on every event
// count inside it, which evaluates the same.
func Format(c Condition) string {
	var b strings.Builder
	format(&b, c)
	return b.String()
}

// FormatRule renders r, including its trigger prefix when set.
func FormatRule(r *Rule) string {
	if r.Trigger == "" {
		return Format(r.Condition)
	}
	return r.Trigger + " AFTER " + Format(r.Condition)
}

func format(b *strings.Builder, c Condition) {
	switch v := c.(type) {
	case EventCount:
		if v.MinCount != 1 {
			b.WriteString(strconv.Itoa(v.MinCount))
			b.WriteString("x ")
		}
		b.WriteString(v.Event)
	case Within:
		if _, ok := v.Inner.(EventCount); !ok {
			format(b, pushWindow(v.Inner, v.WindowMS))
			return
		}
		format(b, v.Inner)
		b.WriteString(" WITHIN ")
		b.WriteString(formatWindow(v.WindowMS))
	case HistoryCheck:
		b.WriteString(v.Event)
		b.WriteString(" SINCE ")
		b.WriteString(v.SinceEvent)
	case ClockCheck:
		b.WriteString("CLOCK(")
		b.WriteString(v.Time1.String())
		b.WriteString(") ")
		if v.Op == ClockBetween {
			b.WriteString("BETWEEN CLOCK(")
			b.WriteString(v.Time2.String())
			b.WriteString(")")
		} else {
			b.WriteString(string(v.Op))
		}
	case Not:
		b.WriteString("NOT ")
		formatGrouped(b, v.Term)
	case And:
		formatTerms(b, " AND ", v.Terms)
	case Or:
		formatTerms(b, " OR ", v.Terms)
	}
}

// pushWindow moves a window onto the event counts below c. Nested windows,
// SINCE and CLOCK checks do not depend on an enclosing window and are kept.
func pushWindow(c Condition, ms int64) Condition {
	switch v := c.(type) {
	case EventCount:
		return Within{Inner: v, WindowMS: ms}
	case And:
		return And{Terms: pushWindowAll(v.Terms, ms)}
	case Or:
		return Or{Terms: pushWindowAll(v.Terms, ms)}
	case Not:
		return Not{Term: pushWindow(v.Term, ms)}
	default:
		return c
	}
}

func pushWindowAll(terms []Condition, ms int64) []Condition {
	out := make([]Condition, len(terms))
	for i, t := range terms {
		out[i] = pushWindow(t, ms)
	}
	return out
}

func formatTerms(b *strings.Builder, sep string, terms []Condition) {
	for i, t := range terms {
		if i > 0 {
			b.WriteString(sep)
		}
		formatGrouped(b, t)
	}
}

// formatGrouped parenthesizes compound terms.
func formatGrouped(b *strings.Builder, c Condition) {
	switch c.(type) {
	case And, Or:
		b.WriteByte('(')
		format(b, c)
		b.WriteByte(')')
	default:
		format(b, c)
	}
}

func formatWindow(ms int64) string {
	for _, u := range []TimeUnit{UnitHours, UnitMinutes} {
		if ms%u.Millis() == 0 {
			return strconv.FormatInt(ms/u.Millis(), 10) + string(u)
		}
	}
	return strconv.FormatInt(ms/UnitSeconds.Millis(), 10) + string(UnitSeconds)
}
