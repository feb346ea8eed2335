// Package evaluator decides whether a compiled rule.Condition holds against
// the recorded event history, either at the moment of a trigger event or,
// for open contracts, at a sweep instant.
package evaluator
