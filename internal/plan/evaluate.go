package plan

import (
	"math"

	"fleetmix/internal/milp"
)

// Cost reduction against baseline the business expects from the fleet.
// Reporting only; never fed back into the model.
const policyThresholdPercent = 40.0

// RouteDecision is one route's share of the optimal assignment.
type RouteDecision struct {
	Route           Route
	TrucksAssigned  int
	CompanyTrips    int
	ThirdPartyTrips int
	Cost            float64
}

// Result is the evaluated outcome of one solve. It is rebuilt from scratch on
// every solve and never mutated afterwards.
type Result struct {
	Decisions            []RouteDecision
	TotalCost            float64
	BaselineCost         float64
	ReductionPercent     float64
	MeetsPolicyThreshold bool
}

// Evaluate converts the raw variable assignment into per-route decisions and
// comparison metrics. ReductionPercent is guarded to 0 when the baseline is 0
// (empty catalog, or all third-party costs zero) instead of dividing by zero.
func Evaluate(c *Catalog, f Formulation, sol milp.Solution, baseline float64) Result {
	res := Result{
		Decisions:    make([]RouteDecision, c.Len()),
		TotalCost:    sol.Objective,
		BaselineCost: baseline,
	}
	for i := 0; i < c.Len(); i++ {
		r := c.Route(i)
		rv := f.Vars[i]
		companyUnit, thirdPartyUnit := UnitCosts(r)
		d := RouteDecision{
			Route:           r,
			TrucksAssigned:  roundInt(sol.Value(rv.Trucks)),
			CompanyTrips:    roundInt(sol.Value(rv.CompanyTrips)),
			ThirdPartyTrips: roundInt(sol.Value(rv.ThirdPartyTrips)),
		}
		d.Cost = float64(d.CompanyTrips)*companyUnit + float64(d.ThirdPartyTrips)*thirdPartyUnit
		res.Decisions[i] = d
	}
	if baseline > 0 {
		res.ReductionPercent = (baseline - res.TotalCost) / baseline * 100
	}
	res.MeetsPolicyThreshold = res.ReductionPercent >= policyThresholdPercent
	return res
}

// Integer variables come back as floats from the solver; snap them.
func roundInt(v float64) int { return int(math.Round(v)) }
