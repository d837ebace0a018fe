// Package highs adapts the HiGHS solver bindings to the milp.Solver contract.
// HiGHS runs branch-and-bound over a simplex relaxation and proves optimality,
// which is what the allocation model requires.
package highs

import (
	"context"
	"fmt"
	"time"

	gohighs "github.com/bartolsthoorn/gohighs/highs"

	"fleetmix/internal/milp"
)

type Solver struct{}

func New() Solver { return Solver{} }

func (Solver) Solve(ctx context.Context, m milp.Model) (milp.Solution, error) {
	if err := ctx.Err(); err != nil {
		return milp.Solution{}, err
	}

	hm := &gohighs.Model{Maximize: m.Sense == milp.Maximize}
	for _, v := range m.Vars {
		hm.ColCosts = append(hm.ColCosts, v.Cost)
		hm.ColLower = append(hm.ColLower, v.Lower)
		hm.ColUpper = append(hm.ColUpper, v.Upper)
		vt := gohighs.Continuous
		if v.Type == milp.Integer {
			vt = gohighs.Integer
		}
		hm.VarTypes = append(hm.VarTypes, vt)
	}
	for _, c := range m.Constraints {
		idx := make([]int, len(c.Terms))
		coef := make([]float64, len(c.Terms))
		for i, t := range c.Terms {
			idx[i] = t.Var
			coef[i] = t.Coef
		}
		hm.AddSparseRow(c.Lower, idx, coef, c.Upper)
	}
	var opts []gohighs.SolveOption
	if dl, ok := ctx.Deadline(); ok {
		budget := time.Until(dl)
		if budget <= 0 {
			return milp.Solution{}, milp.ErrTimeout
		}
		opts = append(opts, gohighs.WithTimeLimit(budget.Seconds()))
	}

	sol, err := hm.Solve(opts...)
	if err != nil {
		return milp.Solution{}, fmt.Errorf("highs solve: %w", err)
	}
	switch {
	case sol.IsOptimal():
		// fall through to extraction
	case sol.IsInfeasible():
		return milp.Solution{}, milp.ErrInfeasible
	case sol.IsUnbounded():
		return milp.Solution{}, milp.ErrUnbounded
	case sol.IsTimeLimit():
		return milp.Solution{}, milp.ErrTimeout
	default:
		return milp.Solution{}, fmt.Errorf("highs solve: unexpected status %v", sol.Status)
	}

	values := make([]float64, len(m.Vars))
	for i := range values {
		values[i] = sol.Value(i)
	}
	return milp.Solution{Objective: sol.Objective, Values: values}, nil
}
