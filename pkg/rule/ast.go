package rule

import (
	"fmt"
	"strings"
)

// NodeKind identifies the shape of an AST node.
type NodeKind string

const (
	NodeContract     NodeKind = "CONTRACT"
	NodeAnd          NodeKind = "AND"
	NodeOr           NodeKind = "OR"
	NodeNot          NodeKind = "NOT"
	NodeEvent        NodeKind = "EVENT"
	NodeCountedEvent NodeKind = "COUNTED_EVENT"
	NodeTemporal     NodeKind = "TEMPORAL_CONDITION"
	NodeSince        NodeKind = "SINCE"
	NodeClock        NodeKind = "CLOCK"
)

// TimeUnit is the unit suffix of a WITHIN window.
type TimeUnit string

const (
	UnitSeconds TimeUnit = "s"
	UnitMinutes TimeUnit = "m"
	UnitHours   TimeUnit = "h"
)

// Millis returns the length of one unit in milliseconds.
func (u TimeUnit) Millis() int64 {
	switch u {
	case UnitSeconds:
		return 1000
	case UnitMinutes:
		return 60 * 1000
	case UnitHours:
		return 60 * 60 * 1000
	default:
		return 0
	}
}

// Node is a node of the parse tree. Only the fields relevant to Kind are
// set:
//
//	CONTRACT           Children = [trigger EVENT, condition]
//	AND, OR            Children = [left, right]
//	NOT                Children = [term]
//	EVENT              Name
//	COUNTED_EVENT      Count, Children = [EVENT]
//	TEMPORAL_CONDITION Amount, Unit, Children = [EVENT or COUNTED_EVENT]
//	SINCE              Children = [EVENT, since EVENT]
//	CLOCK              ClockOp, Time1, Time2
type Node struct {
	Kind     NodeKind
	Pos      int
	Name     string
	Count    int
	Amount   int64
	Unit     TimeUnit
	ClockOp  ClockOp
	Time1    HHMM
	Time2    HHMM
	Children []*Node
}

// String renders the tree in a compact prefix form, mainly for debugging
// and test failure messages.
func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n *Node) write(b *strings.Builder) {
	b.WriteString(string(n.Kind))
	switch n.Kind {
	case NodeEvent:
		fmt.Fprintf(b, "(%s)", n.Name)
		return
	case NodeCountedEvent:
		fmt.Fprintf(b, "[%d]", n.Count)
	case NodeTemporal:
		fmt.Fprintf(b, "[%d%s]", n.Amount, n.Unit)
	case NodeClock:
		if n.ClockOp == ClockBetween {
			fmt.Fprintf(b, "(%s %s %s)", n.Time1, n.ClockOp, n.Time2)
		} else {
			fmt.Fprintf(b, "(%s %s)", n.Time1, n.ClockOp)
		}
		return
	}
	b.WriteByte('(')
	for i, c := range n.Children {
		if i > 0 {
			b.WriteString(", ")
		}
		c.write(b)
	}
	b.WriteByte(')')
}
