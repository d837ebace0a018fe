package store

import (
	"testing"
	"time"

	"fleetmix/internal/model"
)

func TestMemoryCatalogLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := t.Context()
	in := model.CatalogIn{Name: "aug", Routes: []model.RouteIn{
		{From: "Tunis", To: "Sfax", MonthlyDemand: 30, TripDurationDays: 2, CompanyCost: 100, ReturnEmptyCost: 20, ThirdPartyCost: 150},
	}}
	c, err := m.CreateCatalog(ctx, "t1", in)
	if err != nil {
		t.Fatal(err)
	}
	if c.RouteCount != 1 || c.TenantID != "t1" {
		t.Fatalf("catalog: %+v", c)
	}
	routes, err := m.GetCatalogRoutes(ctx, "t1", c.ID)
	if err != nil || len(routes) != 1 {
		t.Fatalf("routes: %v %v", routes, err)
	}
	if _, err := m.GetCatalog(ctx, "t2", c.ID); err != ErrNotFound {
		t.Fatalf("cross-tenant read should be ErrNotFound, got %v", err)
	}
	list, next, err := m.ListCatalogs(ctx, "t1", "", 10)
	if err != nil || len(list) != 1 || next != "" {
		t.Fatalf("list: %v %q %v", list, next, err)
	}
}

func TestMemorySolveLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := t.Context()
	c, _ := m.CreateCatalog(ctx, "t1", model.CatalogIn{Routes: []model.RouteIn{{From: "A", To: "B", MonthlyDemand: 1, TripDurationDays: 1, ThirdPartyCost: 1}}})
	s, err := m.CreateSolve(ctx, "t1", model.SolveRequest{CatalogID: c.ID, FleetSize: 2, WorkDaysPerMonth: 26})
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != "running" {
		t.Fatalf("status: %s", s.Status)
	}
	res := &model.OptimizationResult{TotalCost: 5, BaselineCost: 10, ReductionPercent: 50}
	done, err := m.CompleteSolve(ctx, "t1", s.ID, res)
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != "completed" || done.Result == nil || done.Result.TotalCost != 5 {
		t.Fatalf("completed solve: %+v", done)
	}
	if _, err := m.CompleteSolve(ctx, "t2", s.ID, res); err != ErrNotFound {
		t.Fatalf("cross-tenant complete should fail, got %v", err)
	}

	s2, _ := m.CreateSolve(ctx, "t1", model.SolveRequest{CatalogID: c.ID, FleetSize: 2, WorkDaysPerMonth: 26})
	failed, err := m.FailSolve(ctx, "t1", s2.ID, "infeasible")
	if err != nil || failed.Status != "failed" || failed.Error != "infeasible" {
		t.Fatalf("failed solve: %+v %v", failed, err)
	}
}

func TestMemoryWebhookQueue(t *testing.T) {
	m := NewMemory()
	ctx := t.Context()
	id, err := m.EnqueueWebhook(ctx, "t1", "sub1", "solve.completed", "http://example.com/hook", "sec", []byte(`{"id":"s1"}`))
	if err != nil {
		t.Fatal(err)
	}
	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	if err != nil || len(due) != 1 || due[0].ID != id {
		t.Fatalf("due: %v %v", due, err)
	}
	// failed attempt reschedules into the future
	next := time.Now().Add(time.Hour)
	if err := m.MarkWebhookDelivery(ctx, id, false, &next, "boom", 500, 12); err != nil {
		t.Fatal(err)
	}
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("rescheduled delivery should not be due, got %v", due)
	}
	items, _, err := m.ListWebhookDeliveries(ctx, "t1", "retry", "", 10)
	if err != nil || len(items) != 1 || items[0]["attempts"] != 1 {
		t.Fatalf("list retry: %v %v", items, err)
	}
	if err := m.FailWebhookDelivery(ctx, id, "gave up", 500, 10); err != nil {
		t.Fatal(err)
	}
	items, _, _ = m.ListWebhookDeliveries(ctx, "t1", "failed", "", 10)
	if len(items) != 1 {
		t.Fatalf("list failed: %v", items)
	}
}

func TestMemorySubscriptions(t *testing.T) {
	m := NewMemory()
	ctx := t.Context()
	s, err := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://x", Events: []string{"solve.completed"}, Secret: "s"})
	if err != nil {
		t.Fatal(err)
	}
	subs, _ := m.GetSubscriptionsForEvent(ctx, "t1", "solve.completed")
	if len(subs) != 1 || subs[0].ID != s.ID {
		t.Fatalf("subs: %v", subs)
	}
	if subs, _ := m.GetSubscriptionsForEvent(ctx, "t1", "solve.failed"); len(subs) != 0 {
		t.Fatalf("unexpected match: %v", subs)
	}
	if err := m.DeleteSubscription(ctx, "t1", s.ID); err != nil {
		t.Fatal(err)
	}
	if subs, _ := m.GetSubscriptionsForEvent(ctx, "t1", "solve.completed"); len(subs) != 0 {
		t.Fatalf("subscription not deleted: %v", subs)
	}
}
