package plan

import (
	"context"
	"fmt"

	"fleetmix/internal/milp"
)

// Planner runs one complete solve: formulate, hand the model to the solver,
// evaluate. It holds no state between solves; the result is a pure function
// of (catalog, config) for a fixed solver backend.
type Planner struct {
	Solver milp.Solver
}

func NewPlanner(s milp.Solver) Planner { return Planner{Solver: s} }

// Solve optimizes the company/third-party split for the catalog under cfg.
// The context bounds solver runtime; exceeding it surfaces milp.ErrTimeout,
// never an approximate result. milp.ErrInfeasible is passed through untouched
// so callers can tell solver verdicts from input errors.
func (p Planner) Solve(ctx context.Context, c *Catalog, cfg FleetConfig) (Result, error) {
	f, err := Formulate(c, cfg)
	if err != nil {
		return Result{}, err
	}
	sol, err := p.Solver.Solve(ctx, f.Model)
	if err != nil {
		return Result{}, fmt.Errorf("solve allocation model: %w", err)
	}
	return Evaluate(c, f, sol, BaselineCost(c)), nil
}
