// Package plan holds the monthly allocation model: a validated route catalog
// is formulated as a MILP splitting each route's demand between company trucks
// and third-party carriers, solved exactly, and evaluated against the
// all-outsourced baseline.
package plan

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks malformed route data: missing locations,
	// negative demand or costs, non-positive duration, duplicate pairs.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidConfiguration marks fleet parameters out of range.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// Route is one origin-destination pair with its monthly demand and per-trip
// cost data. CompanyCost and ReturnEmptyCost together form the in-house cost
// of a trip; a company truck has to drive back empty on the operator's dime.
type Route struct {
	From             string
	To               string
	MonthlyDemand    int
	TripDurationDays float64
	CompanyCost      float64
	ReturnEmptyCost  float64
	ThirdPartyCost   float64
}

// Key identifies the route by its (from, to) pair.
func (r Route) Key() string { return r.From + "\x00" + r.To }

// Catalog is an immutable validated route dataset. Build one with NewCatalog;
// it is never mutated after that, so repeated solves see identical input.
type Catalog struct {
	routes []Route
}

// NewCatalog validates the records and freezes them into a catalog.
// Duplicate (from, to) pairs are rejected rather than merged.
func NewCatalog(routes []Route) (*Catalog, error) {
	seen := make(map[string]struct{}, len(routes))
	for i, r := range routes {
		if r.From == "" || r.To == "" {
			return nil, fmt.Errorf("%w: route %d: from and to are required", ErrInvalidInput, i)
		}
		if r.MonthlyDemand < 0 {
			return nil, fmt.Errorf("%w: route %s->%s: monthlyDemand must be >= 0", ErrInvalidInput, r.From, r.To)
		}
		if r.TripDurationDays <= 0 {
			return nil, fmt.Errorf("%w: route %s->%s: tripDurationDays must be > 0", ErrInvalidInput, r.From, r.To)
		}
		if r.CompanyCost < 0 || r.ReturnEmptyCost < 0 || r.ThirdPartyCost < 0 {
			return nil, fmt.Errorf("%w: route %s->%s: costs must be >= 0", ErrInvalidInput, r.From, r.To)
		}
		if _, dup := seen[r.Key()]; dup {
			return nil, fmt.Errorf("%w: duplicate route %s->%s", ErrInvalidInput, r.From, r.To)
		}
		seen[r.Key()] = struct{}{}
	}
	cp := make([]Route, len(routes))
	copy(cp, routes)
	return &Catalog{routes: cp}, nil
}

// Len returns the number of routes.
func (c *Catalog) Len() int { return len(c.routes) }

// Route returns the route at index i.
func (c *Catalog) Route(i int) Route { return c.routes[i] }

// Routes returns a copy of the catalog's routes.
func (c *Catalog) Routes() []Route {
	cp := make([]Route, len(c.routes))
	copy(cp, c.routes)
	return cp
}

// FleetConfig are the two scalar solve parameters.
type FleetConfig struct {
	FleetSize        int
	WorkDaysPerMonth int
}

// Validate checks the parameter ranges. FleetSize 0 is allowed: the model
// degenerates to the all-outsourced solution, which is still well defined.
func (c FleetConfig) Validate() error {
	if c.FleetSize < 0 {
		return fmt.Errorf("%w: fleetSize must be >= 0", ErrInvalidConfiguration)
	}
	if c.WorkDaysPerMonth < 1 || c.WorkDaysPerMonth > 31 {
		return fmt.Errorf("%w: workDaysPerMonth must be in [1,31]", ErrInvalidConfiguration)
	}
	return nil
}
