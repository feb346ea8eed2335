package rule

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormat_RoundTrip(t *testing.T) {
	sources := []string{
		"exercise",
		"2x exercise WITHIN 1h",
		"gaming:league_of_legends AFTER (2x exercise WITHIN 1h) AND (laundry:loaded WITHIN 30m)",
		"a OR b AND c",
		"(a OR b) AND NOT (c OR d)",
		"NOT NOT a",
		"commit SINCE deploy AND CLOCK(0900) BEFORE",
		"CLOCK(2200) BETWEEN CLOCK(0600) OR CLOCK(1200)",
		"0x a WITHIN 90s",
		"a WITHIN 120m",
		"a WITHIN 0s",
		"((a))",
		"a AND b AND c OR d AND (e OR f OR g)",
	}

	for _, src := range sources {
		t.Run(src, func(t *testing.T) {
			first, err := ParseRule(src)
			require.NoError(t, err)

			canonical := FormatRule(first)
			second, err := ParseRule(canonical)
			require.NoError(t, err, "canonical form %q does not parse", canonical)
			require.Equal(t, first, second, "canonical form %q", canonical)

			// Canonical output is a fixed point.
			require.Equal(t, canonical, FormatRule(second))
		})
	}
}

func TestFormat_CanonicalText(t *testing.T) {
	cases := map[string]string{
		"1x a":                                   "a",
		"a WITHIN 60m":                           "a WITHIN 1h",
		"a WITHIN 90s":                           "a WITHIN 90s",
		"a WITHIN 120s":                          "a WITHIN 2m",
		"CLOCK(0900)":                            "CLOCK(0900) AFTER",
		"a OR b AND c":                           "a OR (b AND c)",
		"NOT (a AND b)":                          "NOT (a AND b)",
		"y AFTER   2x   e   WITHIN   1s":         "y AFTER 2x e WITHIN 1s",
		"CLOCK(2200)   BETWEEN   CLOCK(0600)":    "CLOCK(2200) BETWEEN CLOCK(0600)",
	}
	for src, want := range cases {
		r, err := ParseRule(src)
		require.NoError(t, err, src)
		require.Equal(t, want, FormatRule(r), src)
	}
}

func TestFormat_CompoundWindowPrintsParsableSource(t *testing.T) {
	c := Within{
		Inner: And{Terms: []Condition{
			EventCount{Event: "a", MinCount: 1},
			Or{Terms: []Condition{
				EventCount{Event: "b", MinCount: 2},
				HistoryCheck{Event: "c", SinceEvent: "d"},
			}},
			Not{Term: EventCount{Event: "e", MinCount: 1}},
			Within{Inner: EventCount{Event: "f", MinCount: 1}, WindowMS: 1000},
		}},
		WindowMS: 60_000,
	}

	src := Format(c)
	require.Equal(t, "a WITHIN 1m AND (2x b WITHIN 1m OR c SINCE d) AND NOT e WITHIN 1m AND f WITHIN 1s", src)

	parsed, err := Parse(src)
	require.NoError(t, err)
	require.Equal(t, And{Terms: []Condition{
		Within{Inner: EventCount{Event: "a", MinCount: 1}, WindowMS: 60_000},
		Or{Terms: []Condition{
			Within{Inner: EventCount{Event: "b", MinCount: 2}, WindowMS: 60_000},
			HistoryCheck{Event: "c", SinceEvent: "d"},
		}},
		Not{Term: Within{Inner: EventCount{Event: "e", MinCount: 1}, WindowMS: 60_000}},
		Within{Inner: EventCount{Event: "f", MinCount: 1}, WindowMS: 1000},
	}}, parsed)
}

func TestParse_RejectsWindowOnGroup(t *testing.T) {
	_, err := Parse("(a AND b) WITHIN 1m")
	require.ErrorIs(t, err, ErrSyntax)
}

func TestValidate(t *testing.T) {
	valid := []Condition{
		EventCount{Event: "a", MinCount: 0},
		And{Terms: []Condition{EventCount{Event: "a", MinCount: 1}}},
		Not{Term: ClockCheck{Op: ClockBetween, Time1: 2200, Time2: 600}},
		Within{Inner: Or{Terms: []Condition{HistoryCheck{Event: "a", SinceEvent: "b"}}}, WindowMS: 10},
	}
	for _, c := range valid {
		if err := Validate(c); err != nil {
			t.Fatalf("expected %#v to be valid, got %v", c, err)
		}
	}

	invalid := []Condition{
		nil,
		EventCount{},
		EventCount{Event: "a", MinCount: -1},
		And{},
		Or{Terms: []Condition{}},
		Not{},
		Within{Inner: EventCount{Event: "a", MinCount: 1}, WindowMS: -1},
		Within{WindowMS: 5},
		ClockCheck{Op: ClockAfter, Time1: 2400},
		ClockCheck{Op: ClockBetween, Time1: 100, Time2: 1360},
		ClockCheck{Op: "AROUND", Time1: 100},
		HistoryCheck{Event: "a"},
	}
	for _, c := range invalid {
		err := Validate(c)
		if !errors.Is(err, ErrInvalidCondition) {
			t.Fatalf("expected ErrInvalidCondition for %#v, got %v", c, err)
		}
	}
}

func TestEventTypes(t *testing.T) {
	c, err := Parse("(2x b WITHIN 1h OR NOT a) AND c SINCE b AND CLOCK(0100)")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, EventTypes(c))
}

func TestCompile_RejectsMisplacedContract(t *testing.T) {
	n := &Node{Kind: NodeNot, Children: []*Node{{Kind: NodeContract}}}
	_, err := Compile(n)
	require.ErrorIs(t, err, ErrInvalidCondition)

	_, err = Compile(&Node{Kind: NodeTemporal, Unit: "d", Amount: 1, Children: []*Node{{Kind: NodeEvent, Name: "a"}}})
	require.ErrorIs(t, err, ErrInvalidCondition)
}
