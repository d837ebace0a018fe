package milp

import (
	"context"
	"errors"
)

// Solver is an exact MILP-solving capability. Implementations must return the
// true optimum or an error; approximate or heuristic results are not
// acceptable, since downstream policy checks depend on real optimality.
type Solver interface {
	Solve(ctx context.Context, m Model) (Solution, error)
}

// Solution is a proven-optimal assignment of every variable.
type Solution struct {
	Objective float64
	Values    []float64 // indexed by column
}

// Value returns the assignment for column i, 0 if out of range.
func (s Solution) Value(i int) float64 {
	if i < 0 || i >= len(s.Values) {
		return 0
	}
	return s.Values[i]
}

var (
	// ErrInfeasible is returned when the solver proves no feasible
	// assignment exists.
	ErrInfeasible = errors.New("model infeasible")
	// ErrUnbounded is returned when the objective is unbounded.
	ErrUnbounded = errors.New("model unbounded")
	// ErrTimeout is returned when the time budget elapsed before the solver
	// proved optimality. No partial result is surfaced.
	ErrTimeout = errors.New("solver timed out")
)
