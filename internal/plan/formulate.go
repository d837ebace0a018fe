package plan

import (
	"fmt"

	"fleetmix/internal/milp"
)

// RouteVars holds the column indices of one route's decision triple. Typed
// indices replace name-keyed variable lookups; the solver never sees route
// identity, only columns.
type RouteVars struct {
	Trucks          int
	CompanyTrips    int
	ThirdPartyTrips int
}

// Formulation pairs the solver-ready model with the per-route variable map,
// parallel to the catalog's route order.
type Formulation struct {
	Model milp.Model
	Vars  []RouteVars
}

// Formulate assembles the allocation MILP for one catalog and fleet
// configuration. Per route: integer trucks in [0, fleetSize], integer company
// and third-party trips in [0, inf). Objective minimizes company trips at
// company+return-empty unit cost plus third-party trips at carrier unit cost.
//
// Constraints:
//   - fleet: sum of trucks over all routes <= fleetSize
//   - demand_i: companyTrips + thirdPartyTrips >= monthlyDemand
//   - coverage_i (demand > 20 only): companyTrips >= 0.5 * monthlyDemand
//   - capacity_i: companyTrips <= trucks * maxTripsPerTruck
//
// Demand can always overflow to third-party trips, so the model is feasible
// for any validated input; an infeasible verdict from the solver indicates
// malformed input that slipped past validation.
func Formulate(c *Catalog, cfg FleetConfig) (Formulation, error) {
	if err := cfg.Validate(); err != nil {
		return Formulation{}, err
	}

	f := Formulation{Vars: make([]RouteVars, c.Len())}
	m := &f.Model
	m.Sense = milp.Minimize

	fleetTerms := make([]milp.Term, 0, c.Len())
	for i := 0; i < c.Len(); i++ {
		r := c.Route(i)
		companyUnit, thirdPartyUnit := UnitCosts(r)
		rv := RouteVars{
			// Upper bound is the full fleet; the aggregate fleet row
			// dominates, so a tighter per-route bound would not change
			// the optimum.
			Trucks: m.AddVar(milp.Var{
				Name:  fmt.Sprintf("trucks_%d", i),
				Type:  milp.Integer,
				Lower: 0, Upper: float64(cfg.FleetSize),
			}),
			CompanyTrips: m.AddVar(milp.Var{
				Name:  fmt.Sprintf("company_%d", i),
				Type:  milp.Integer,
				Lower: 0, Upper: milp.Inf(),
				Cost: companyUnit,
			}),
			ThirdPartyTrips: m.AddVar(milp.Var{
				Name:  fmt.Sprintf("thirdparty_%d", i),
				Type:  milp.Integer,
				Lower: 0, Upper: milp.Inf(),
				Cost: thirdPartyUnit,
			}),
		}
		f.Vars[i] = rv
		fleetTerms = append(fleetTerms, milp.Term{Var: rv.Trucks, Coef: 1})

		m.AddConstraint(milp.AtLeast(
			fmt.Sprintf("demand_%d", i), float64(r.MonthlyDemand),
			milp.Term{Var: rv.CompanyTrips, Coef: 1},
			milp.Term{Var: rv.ThirdPartyTrips, Coef: 1},
		))
		if min, ok := HighDemandMinimum(r); ok {
			// Fractional right-hand side on purpose; see HighDemandMinimum.
			m.AddConstraint(milp.AtLeast(
				fmt.Sprintf("coverage_%d", i), min,
				milp.Term{Var: rv.CompanyTrips, Coef: 1},
			))
		}
		m.AddConstraint(milp.AtMost(
			fmt.Sprintf("capacity_%d", i), 0,
			milp.Term{Var: rv.CompanyTrips, Coef: 1},
			milp.Term{Var: rv.Trucks, Coef: -float64(MaxTripsPerTruck(r, cfg.WorkDaysPerMonth))},
		))
	}
	m.AddConstraint(milp.AtMost("fleet", float64(cfg.FleetSize), fleetTerms...))

	return f, nil
}
