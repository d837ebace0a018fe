// Package milp defines a small value-object representation of mixed-integer
// linear programs and the contract for exact external solvers.
package milp

import "math"

type VarType int

const (
	Continuous VarType = iota
	Integer
)

type Sense int

const (
	Minimize Sense = iota
	Maximize
)

// Var is one column of the model. Cost is the objective coefficient.
type Var struct {
	Name  string
	Type  VarType
	Lower float64
	Upper float64
	Cost  float64
}

// Term is a single coefficient on a variable, referenced by column index.
type Term struct {
	Var  int
	Coef float64
}

// Constraint is a ranged row: Lower <= sum(Terms) <= Upper.
// One-sided rows use -Inf / +Inf on the open side.
type Constraint struct {
	Name  string
	Terms []Term
	Lower float64
	Upper float64
}

// Model accumulates variables and constraints, then is handed once to a
// Solver. It carries no solver state and is safe to formulate per request.
type Model struct {
	Sense       Sense
	Vars        []Var
	Constraints []Constraint
}

// AddVar appends a variable and returns its column index.
func (m *Model) AddVar(v Var) int {
	m.Vars = append(m.Vars, v)
	return len(m.Vars) - 1
}

// AddConstraint appends a ranged row.
func (m *Model) AddConstraint(c Constraint) {
	m.Constraints = append(m.Constraints, c)
}

// AtLeast builds a row sum(terms) >= bound.
func AtLeast(name string, bound float64, terms ...Term) Constraint {
	return Constraint{Name: name, Terms: terms, Lower: bound, Upper: math.Inf(1)}
}

// AtMost builds a row sum(terms) <= bound.
func AtMost(name string, bound float64, terms ...Term) Constraint {
	return Constraint{Name: name, Terms: terms, Lower: math.Inf(-1), Upper: bound}
}

// Inf is the unbounded upper limit for variable and row bounds.
func Inf() float64 { return math.Inf(1) }
