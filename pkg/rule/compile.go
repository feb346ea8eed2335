package rule

import "fmt"

// Compile converts a condition AST into its Condition form. It is pure and
// deterministic. Nested AND (or OR) nodes are flattened into a single n-ary
// And (or Or), so "a AND b AND c" and "a AND (b AND c)" compile to the same
// value.
//
// Compile only fails on trees the parser never produces, such as a CONTRACT
// node below the root.
func Compile(n *Node) (Condition, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: nil node", ErrInvalidCondition)
	}
	switch n.Kind {
	case NodeEvent:
		return EventCount{Event: n.Name, MinCount: 1}, nil

	case NodeCountedEvent:
		if len(n.Children) != 1 {
			return nil, badArity(n)
		}
		return EventCount{Event: n.Children[0].Name, MinCount: n.Count}, nil

	case NodeTemporal:
		if len(n.Children) != 1 {
			return nil, badArity(n)
		}
		inner, err := Compile(n.Children[0])
		if err != nil {
			return nil, err
		}
		ms := n.Unit.Millis()
		if ms == 0 {
			return nil, fmt.Errorf("%w: unknown time unit %q", ErrInvalidCondition, n.Unit)
		}
		return Within{Inner: inner, WindowMS: n.Amount * ms}, nil

	case NodeSince:
		if len(n.Children) != 2 {
			return nil, badArity(n)
		}
		return HistoryCheck{Event: n.Children[0].Name, SinceEvent: n.Children[1].Name}, nil

	case NodeClock:
		return ClockCheck{Op: n.ClockOp, Time1: n.Time1, Time2: n.Time2}, nil

	case NodeNot:
		if len(n.Children) != 1 {
			return nil, badArity(n)
		}
		term, err := Compile(n.Children[0])
		if err != nil {
			return nil, err
		}
		return Not{Term: term}, nil

	case NodeAnd, NodeOr:
		terms, err := compileFlat(n.Kind, n, nil)
		if err != nil {
			return nil, err
		}
		if n.Kind == NodeAnd {
			return And{Terms: terms}, nil
		}
		return Or{Terms: terms}, nil
	}
	return nil, fmt.Errorf("%w: unexpected %s node", ErrInvalidCondition, n.Kind)
}

func compileFlat(kind NodeKind, n *Node, acc []Condition) ([]Condition, error) {
	if n.Kind != kind {
		c, err := Compile(n)
		if err != nil {
			return nil, err
		}
		return append(acc, c), nil
	}
	if len(n.Children) == 0 {
		return nil, badArity(n)
	}
	for _, child := range n.Children {
		var err error
		if acc, err = compileFlat(kind, child, acc); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func badArity(n *Node) error {
	return fmt.Errorf("%w: %s node with %d children", ErrInvalidCondition, n.Kind, len(n.Children))
}
