package model

// Wire types shared by the API, store, and ingest layers.

// RouteIn is one route record as supplied by a dataset source. Costs are
// per-trip; demand is trips per month.
type RouteIn struct {
	From             string  `json:"from"`
	To               string  `json:"to"`
	MonthlyDemand    int     `json:"monthlyDemand"`
	TripDurationDays float64 `json:"tripDurationDays"`
	CompanyCost      float64 `json:"companyCost"`
	ReturnEmptyCost  float64 `json:"returnEmptyCost"`
	ThirdPartyCost   float64 `json:"thirdPartyCost"`
}

// CatalogIn is the payload for creating a route catalog.
type CatalogIn struct {
	Name   string    `json:"name,omitempty"`
	Routes []RouteIn `json:"routes"`
}

// CatalogOut is the read model for a stored catalog.
type CatalogOut struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	Name       string `json:"name,omitempty"`
	RouteCount int    `json:"routeCount"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

// SolveRequest triggers one optimization run over a stored catalog.
type SolveRequest struct {
	CatalogID        string `json:"catalogId"`
	FleetSize        int    `json:"fleetSize"`
	WorkDaysPerMonth int    `json:"workDaysPerMonth"`
	TimeBudgetMs     int    `json:"timeBudgetMs,omitempty"`
}

// RouteDecision is the per-route slice of an optimization result.
type RouteDecision struct {
	From            string  `json:"from"`
	To              string  `json:"to"`
	TrucksAssigned  int     `json:"trucksAssigned"`
	CompanyTrips    int     `json:"companyTrips"`
	ThirdPartyTrips int     `json:"thirdPartyTrips"`
	Cost            float64 `json:"cost"`
}

// OptimizationResult is the full outcome of one solve.
type OptimizationResult struct {
	Decisions            []RouteDecision `json:"decisions"`
	TotalCost            float64         `json:"totalCost"`
	BaselineCost         float64         `json:"baselineCost"`
	ReductionPercent     float64         `json:"reductionPercent"`
	MeetsPolicyThreshold bool            `json:"meetsPolicyThreshold"`
}

// SolveOut is the read model for a stored solve.
type SolveOut struct {
	ID               string              `json:"id"`
	TenantID         string              `json:"tenantId"`
	CatalogID        string              `json:"catalogId"`
	Status           string              `json:"status"` // running, completed, failed
	FleetSize        int                 `json:"fleetSize"`
	WorkDaysPerMonth int                 `json:"workDaysPerMonth"`
	Result           *OptimizationResult `json:"result,omitempty"`
	Error            string              `json:"error,omitempty"`
	CreatedAt        string              `json:"createdAt,omitempty"`
}

// SubscriptionRequest registers a webhook endpoint for solve events.
type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
