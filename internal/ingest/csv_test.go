package ingest

import (
	"strings"
	"testing"
)

const sample = `from,to,monthly_demand,trip_duration_days,company_cost,return_empty_cost,third_party_cost
Tunis,Sfax,30,2,100,20,150
Sfax,Gabes,12,1.5,80,10,95
`

func TestParseRoutes(t *testing.T) {
	routes, err := ParseRoutes(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 2 {
		t.Fatalf("got %d routes", len(routes))
	}
	r := routes[0]
	if r.From != "Tunis" || r.To != "Sfax" || r.MonthlyDemand != 30 || r.TripDurationDays != 2 {
		t.Fatalf("first route: %+v", r)
	}
	if r.CompanyCost != 100 || r.ReturnEmptyCost != 20 || r.ThirdPartyCost != 150 {
		t.Fatalf("first route costs: %+v", r)
	}
	if routes[1].TripDurationDays != 1.5 {
		t.Fatalf("second route duration: %v", routes[1].TripDurationDays)
	}
}

func TestParseRoutesShuffledHeaderAndExtras(t *testing.T) {
	data := `third_party_cost,FROM,to,notes,company_cost,return_empty_cost,monthly_demand,trip_duration_days
150,A,B,ignored,100,20,30,2
`
	routes, err := ParseRoutes(strings.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if routes[0].From != "A" || routes[0].ThirdPartyCost != 150 {
		t.Fatalf("got %+v", routes[0])
	}
}

func TestParseRoutesMissingColumn(t *testing.T) {
	data := "from,to,monthly_demand\nA,B,1\n"
	if _, err := ParseRoutes(strings.NewReader(data)); err == nil {
		t.Fatal("expected missing column error")
	}
}

func TestParseRoutesBadNumber(t *testing.T) {
	data := strings.Replace(sample, "30", "many", 1)
	if _, err := ParseRoutes(strings.NewReader(data)); err == nil {
		t.Fatal("expected numeric parse error")
	}
}
