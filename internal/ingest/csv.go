// Package ingest parses route datasets from external sources into wire
// records. The optimizer core never reads files itself; this is the input
// collaborator boundary.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fleetmix/internal/model"
)

// Required CSV header columns, matched case-insensitively.
var columns = []string{
	"from", "to", "monthly_demand", "trip_duration_days",
	"company_cost", "return_empty_cost", "third_party_cost",
}

// ParseRoutes reads a CSV export of the route sheet: one header row, one
// record per route. Column order is free; extra columns are ignored.
// Numeric validity is checked here only syntactically; domain validation
// (ranges, duplicate pairs) stays with the catalog.
func ParseRoutes(r io.Reader) ([]model.RouteIn, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range columns {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("csv missing column %q", c)
		}
	}

	var out []model.RouteIn
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		get := func(col string) string { return strings.TrimSpace(rec[idx[col]]) }
		demand, err := strconv.Atoi(get("monthly_demand"))
		if err != nil {
			return nil, fmt.Errorf("csv line %d: monthly_demand: %w", line, err)
		}
		duration, err := strconv.ParseFloat(get("trip_duration_days"), 64)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: trip_duration_days: %w", line, err)
		}
		companyCost, err := strconv.ParseFloat(get("company_cost"), 64)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: company_cost: %w", line, err)
		}
		returnCost, err := strconv.ParseFloat(get("return_empty_cost"), 64)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: return_empty_cost: %w", line, err)
		}
		thirdCost, err := strconv.ParseFloat(get("third_party_cost"), 64)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: third_party_cost: %w", line, err)
		}
		out = append(out, model.RouteIn{
			From:             get("from"),
			To:               get("to"),
			MonthlyDemand:    demand,
			TripDurationDays: duration,
			CompanyCost:      companyCost,
			ReturnEmptyCost:  returnCost,
			ThirdPartyCost:   thirdCost,
		})
	}
	return out, nil
}
