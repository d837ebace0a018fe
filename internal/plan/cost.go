package plan

// BaselineCost is the monthly total if every trip were outsourced:
// sum over routes of demand * thirdPartyCost. It is only a comparison
// denominator, never part of the model. Empty catalog gives 0.
func BaselineCost(c *Catalog) float64 {
	total := 0.0
	for _, r := range c.routes {
		total += float64(r.MonthlyDemand) * r.ThirdPartyCost
	}
	return total
}

// UnitCosts returns the objective coefficients for one route. The company
// per-trip cost includes the empty return leg; leaving it out would
// understate in-house cost and skew the split toward the fleet.
func UnitCosts(r Route) (company, thirdParty float64) {
	return r.CompanyCost + r.ReturnEmptyCost, r.ThirdPartyCost
}
