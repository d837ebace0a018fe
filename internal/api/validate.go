package api

import (
	"fmt"

	"fleetmix/internal/model"
)

func validateSolveRequest(req *model.SolveRequest) error {
	if req.CatalogID == "" {
		return fmt.Errorf("catalogId is required")
	}
	if req.FleetSize < 0 {
		return fmt.Errorf("fleetSize must be >= 0")
	}
	if req.WorkDaysPerMonth < 1 || req.WorkDaysPerMonth > 31 {
		return fmt.Errorf("workDaysPerMonth must be in [1,31]")
	}
	if req.TimeBudgetMs < 0 {
		return fmt.Errorf("timeBudgetMs must be >= 0")
	}
	return nil
}

func validateSubscriptionRequest(req *model.SubscriptionRequest) error {
	if req.URL == "" {
		return fmt.Errorf("url is required")
	}
	if len(req.Events) == 0 {
		return fmt.Errorf("events must not be empty")
	}
	for _, e := range req.Events {
		if e != "solve.completed" && e != "solve.failed" {
			return fmt.Errorf("unknown event type: %s (allowed: solve.completed, solve.failed)", e)
		}
	}
	return nil
}
