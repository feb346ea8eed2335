// Package rule implements the contract rule language: a lexer, a
// recursive-descent parser producing a syntax tree, and a compiler from that
// tree to Condition values the evaluator can run repeatedly.
//
// # Grammar
//
//	contract   := event AFTER condition
//	condition  := term (LOGICAL_OP term)*
//	term       := '(' condition ')' | NOT term | clockTerm | tempTerm
//	clockTerm  := CLOCK '(' hhmm ')' ( (AFTER|BEFORE) | BETWEEN CLOCK '(' hhmm ')' )?
//	tempTerm   := [NUMBER 'x'] event ( SINCE event | WITHIN NUMBER unit )?
//	unit       := 's' | 'm' | 'h'
//	event      := [A-Za-z_:]+
//
// AND binds tighter than OR, so "a OR b AND c" means "a OR (b AND c)".
// Parentheses override. A clock term without a suffix defaults to AFTER.
//
// Example:
//
//	gaming:league_of_legends AFTER 2x exercise WITHIN 1h AND laundry:loaded WITHIN 30m
//
// # Conditions
//
// Condition is a closed sum type (EventCount, Within, And, Or, Not,
// ClockCheck, HistoryCheck). Format renders any compiled Condition back to
// canonical source.
package rule
