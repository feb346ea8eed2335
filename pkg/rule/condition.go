package rule

import (
	"fmt"
	"sort"
)

// Condition is the compiled, evaluable form of a rule. It is a closed sum
// type: the only implementations are EventCount, Within, And, Or, Not,
// ClockCheck and HistoryCheck.
type Condition interface {
	condition()
}

// EventCount holds when at least MinCount events of type Event fall in the
// evaluation window.
type EventCount struct {
	Event    string
	MinCount int
}

// Within evaluates Inner restricted to [trigger-WindowMS, trigger).
type Within struct {
	Inner    Condition
	WindowMS int64
}

// And holds when every term holds.
type And struct {
	Terms []Condition
}

// Or holds when any term holds.
type Or struct {
	Terms []Condition
}

// Not negates Term.
type Not struct {
	Term Condition
}

// ClockOp is the comparison of a ClockCheck.
type ClockOp string

const (
	ClockAfter   ClockOp = "AFTER"
	ClockBefore  ClockOp = "BEFORE"
	ClockBetween ClockOp = "BETWEEN"
)

// HHMM is a time of day encoded as hours*100 + minutes.
type HHMM int

// Valid reports whether h is a real time of day.
func (h HHMM) Valid() bool {
	return h >= 0 && h/100 < 24 && h%100 < 60
}

func (h HHMM) String() string {
	return fmt.Sprintf("%04d", int(h))
}

// ClockCheck tests the time of day of the trigger. Time2 is only used by
// BETWEEN, which is inclusive of Time1 and exclusive of Time2 and wraps
// around midnight when Time1 > Time2.
type ClockCheck struct {
	Op    ClockOp
	Time1 HHMM
	Time2 HHMM
}

// HistoryCheck holds when Event occurred at least once after the latest
// prior occurrence of SinceEvent.
type HistoryCheck struct {
	Event      string
	SinceEvent string
}

func (EventCount) condition()   {}
func (Within) condition()       {}
func (And) condition()          {}
func (Or) condition()           {}
func (Not) condition()          {}
func (ClockCheck) condition()   {}
func (HistoryCheck) condition() {}

// Validate checks the structural invariants of c: And and Or have at least
// one term, Not has exactly one, counts and windows are non-negative, clock
// values are real times of day.
func Validate(c Condition) error {
	switch v := c.(type) {
	case EventCount:
		if v.Event == "" {
			return fmt.Errorf("%w: event count without event", ErrInvalidCondition)
		}
		if v.MinCount < 0 {
			return fmt.Errorf("%w: negative count %d for %q", ErrInvalidCondition, v.MinCount, v.Event)
		}
	case Within:
		if v.WindowMS < 0 {
			return fmt.Errorf("%w: negative window %d", ErrInvalidCondition, v.WindowMS)
		}
		if v.Inner == nil {
			return fmt.Errorf("%w: window without inner condition", ErrInvalidCondition)
		}
		return Validate(v.Inner)
	case And:
		return validateTerms("AND", v.Terms)
	case Or:
		return validateTerms("OR", v.Terms)
	case Not:
		if v.Term == nil {
			return fmt.Errorf("%w: NOT requires exactly one term", ErrInvalidCondition)
		}
		return Validate(v.Term)
	case ClockCheck:
		if !v.Time1.Valid() {
			return fmt.Errorf("%w: invalid clock value %s", ErrInvalidCondition, v.Time1)
		}
		switch v.Op {
		case ClockAfter, ClockBefore:
		case ClockBetween:
			if !v.Time2.Valid() {
				return fmt.Errorf("%w: invalid clock value %s", ErrInvalidCondition, v.Time2)
			}
		default:
			return fmt.Errorf("%w: unknown clock operator %q", ErrInvalidCondition, v.Op)
		}
	case HistoryCheck:
		if v.Event == "" || v.SinceEvent == "" {
			return fmt.Errorf("%w: SINCE requires two events", ErrInvalidCondition)
		}
	case nil:
		return fmt.Errorf("%w: nil condition", ErrInvalidCondition)
	default:
		return fmt.Errorf("%w: unknown condition %T", ErrInvalidCondition, c)
	}
	return nil
}

func validateTerms(op string, terms []Condition) error {
	if len(terms) == 0 {
		return fmt.Errorf("%w: %s requires at least one term", ErrInvalidCondition, op)
	}
	for _, t := range terms {
		if err := Validate(t); err != nil {
			return err
		}
	}
	return nil
}

// EventTypes returns the sorted, de-duplicated event types c refers to.
// The evaluator uses it to fetch everything a subtree needs in one query.
func EventTypes(c Condition) []string {
	seen := make(map[string]struct{})
	collectEventTypes(c, seen)
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func collectEventTypes(c Condition, seen map[string]struct{}) {
	switch v := c.(type) {
	case EventCount:
		seen[v.Event] = struct{}{}
	case Within:
		collectEventTypes(v.Inner, seen)
	case And:
		for _, t := range v.Terms {
			collectEventTypes(t, seen)
		}
	case Or:
		for _, t := range v.Terms {
			collectEventTypes(t, seen)
		}
	case Not:
		collectEventTypes(v.Term, seen)
	case HistoryCheck:
		seen[v.Event] = struct{}{}
		seen[v.SinceEvent] = struct{}{}
	}
}
