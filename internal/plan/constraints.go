package plan

import "math"

// Routes above this monthly demand must be primarily serviced in-house.
const highDemandCutoff = 20

// Fraction of demand the fleet must cover on high-demand routes.
const highDemandShare = 0.5

// MaxTripsPerTruck is how many round trips one truck can complete on the
// route in a month: floor(workDays / tripDurationDays). The floor is integer
// by construction; a truck cannot start a trip it cannot finish within the
// month. A duration longer than the month yields 0, which is not an error:
// the route is then fully outsourceable and the solver routes all demand to
// the third-party variable.
func MaxTripsPerTruck(r Route, workDaysPerMonth int) int {
	return int(math.Floor(float64(workDaysPerMonth) / r.TripDurationDays))
}

// HighDemandMinimum returns the lower bound on company trips for r and
// whether the policy applies. The bound may be fractional (odd demand); it is
// passed to the solver untouched so the integrality of the company-trips
// variable rounds the effective minimum up. Demand 21 gives 10.5, which an
// integer variable can only satisfy at 11. Pre-rounding with ceil or floor
// here would bake in the wrong direction for one of the two parities.
func HighDemandMinimum(r Route) (float64, bool) {
	if r.MonthlyDemand <= highDemandCutoff {
		return 0, false
	}
	return highDemandShare * float64(r.MonthlyDemand), true
}
