package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fleetmix/internal/ingest"
	"fleetmix/internal/metrics"
	"fleetmix/internal/milp"
	"fleetmix/internal/model"
	"fleetmix/internal/plan"
	"fleetmix/internal/store"
	"fleetmix/internal/webhooks"
)

// CatalogsHandler handles POST/GET /v1/catalogs
func (s *Server) CatalogsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p := s.getPrincipal(r)
		if !p.CanPlan() {
			writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path)
			return
		}
		var req model.CatalogIn
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		// Reject malformed datasets up front so every stored catalog solves.
		if _, err := plan.NewCatalog(toPlanRoutes(req.Routes)); err != nil {
			writeProblem(w, http.StatusUnprocessableEntity, "Invalid catalog", err.Error(), r.URL.Path)
			return
		}
		out, err := s.Store.CreateCatalog(r.Context(), p.Tenant, req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create catalog failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	case http.MethodGet:
		_, tenant := s.withTenant(r)
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListCatalogs(r.Context(), tenant, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List catalogs failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// CatalogImportHandler handles POST /v1/catalogs/import with a text/csv body.
func (s *Server) CatalogImportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanPlan() {
		writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path)
		return
	}
	routes, err := ingest.ParseRoutes(r.Body)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid CSV", err.Error(), r.URL.Path)
		return
	}
	req := model.CatalogIn{Name: r.URL.Query().Get("name"), Routes: routes}
	if _, err := plan.NewCatalog(toPlanRoutes(routes)); err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Invalid catalog", err.Error(), r.URL.Path)
		return
	}
	out, err := s.Store.CreateCatalog(r.Context(), p.Tenant, req)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create catalog failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// CatalogByIDHandler handles GET /v1/catalogs/{id} and /v1/catalogs/{id}/routes
func (s *Server) CatalogByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/catalogs/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	_, tenant := s.withTenant(r)
	if len(parts) > 1 && parts[1] == "routes" {
		routes, err := s.Store.GetCatalogRoutes(r.Context(), tenant, id)
		if err != nil {
			writeProblem(w, http.StatusNotFound, "Catalog not found", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": routes})
		return
	}
	c, err := s.Store.GetCatalog(r.Context(), tenant, id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Catalog not found", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// SolveHandler handles POST /v1/solve: load the catalog, run the allocation
// model within the time budget, persist and publish the outcome.
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanPlan() {
		writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path)
		return
	}
	var req model.SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateSolveRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid solve request", err.Error(), r.URL.Path)
		return
	}
	if !s.limiter(p.Tenant).Allow() {
		writeProblem(w, http.StatusTooManyRequests, "Rate limited", "solve rate limit exceeded", r.URL.Path)
		return
	}
	routeIns, err := s.Store.GetCatalogRoutes(r.Context(), p.Tenant, req.CatalogID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Catalog not found", req.CatalogID, r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Load catalog failed", err.Error(), r.URL.Path)
		return
	}
	rec, err := s.Store.CreateSolve(r.Context(), p.Tenant, req)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create solve failed", err.Error(), r.URL.Path)
		return
	}

	s.Broker.Publish(rec.ID, SSEEvent{Type: "solve.started", Data: map[string]any{"solveId": rec.ID, "catalogId": req.CatalogID}})

	budget := req.TimeBudgetMs
	if budget <= 0 {
		budget = s.Cfg.DefaultTimeBudgetMs
	}
	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(budget)*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, err := s.runSolve(ctx, routeIns, req)
	metrics.SolveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		status, label, title := classifySolveError(err)
		metrics.Solves.WithLabelValues(label).Inc()
		failed, ferr := s.Store.FailSolve(r.Context(), p.Tenant, rec.ID, err.Error())
		if ferr == nil {
			s.Broker.Publish(rec.ID, SSEEvent{Type: webhooks.EventSolveFailed, Data: map[string]any{"solveId": rec.ID, "error": err.Error()}})
			s.Pub.Emit(r.Context(), p.Tenant, webhooks.EventSolveFailed, failed)
		}
		writeProblem(w, status, title, err.Error(), r.URL.Path)
		return
	}
	metrics.Solves.WithLabelValues("completed").Inc()
	metrics.SolveReduction.Observe(result.ReductionPercent)
	out, err := s.Store.CompleteSolve(r.Context(), p.Tenant, rec.ID, result)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Persist solve failed", err.Error(), r.URL.Path)
		return
	}
	s.Broker.Publish(rec.ID, SSEEvent{Type: webhooks.EventSolveCompleted, Data: map[string]any{
		"solveId":          rec.ID,
		"totalCost":        result.TotalCost,
		"reductionPercent": result.ReductionPercent,
	}})
	s.Pub.Emit(r.Context(), p.Tenant, webhooks.EventSolveCompleted, out)
	writeJSON(w, http.StatusOK, out)
}

// runSolve rebuilds the catalog from stored routes and executes one solve.
func (s *Server) runSolve(ctx context.Context, routeIns []model.RouteIn, req model.SolveRequest) (*model.OptimizationResult, error) {
	c, err := plan.NewCatalog(toPlanRoutes(routeIns))
	if err != nil {
		return nil, err
	}
	cfg := plan.FleetConfig{FleetSize: req.FleetSize, WorkDaysPerMonth: req.WorkDaysPerMonth}
	res, err := s.Planner.Solve(ctx, c, cfg)
	if err != nil {
		return nil, err
	}
	return toModelResult(res), nil
}

func toPlanRoutes(in []model.RouteIn) []plan.Route {
	out := make([]plan.Route, len(in))
	for i, r := range in {
		out[i] = plan.Route{
			From:             r.From,
			To:               r.To,
			MonthlyDemand:    r.MonthlyDemand,
			TripDurationDays: r.TripDurationDays,
			CompanyCost:      r.CompanyCost,
			ReturnEmptyCost:  r.ReturnEmptyCost,
			ThirdPartyCost:   r.ThirdPartyCost,
		}
	}
	return out
}

func toModelResult(res plan.Result) *model.OptimizationResult {
	out := &model.OptimizationResult{
		Decisions:            make([]model.RouteDecision, len(res.Decisions)),
		TotalCost:            res.TotalCost,
		BaselineCost:         res.BaselineCost,
		ReductionPercent:     res.ReductionPercent,
		MeetsPolicyThreshold: res.MeetsPolicyThreshold,
	}
	for i, d := range res.Decisions {
		out.Decisions[i] = model.RouteDecision{
			From:            d.Route.From,
			To:              d.Route.To,
			TrucksAssigned:  d.TrucksAssigned,
			CompanyTrips:    d.CompanyTrips,
			ThirdPartyTrips: d.ThirdPartyTrips,
			Cost:            d.Cost,
		}
	}
	return out
}

// classifySolveError maps solve failures to an HTTP status and metric label.
func classifySolveError(err error) (status int, label, title string) {
	switch {
	case errors.Is(err, plan.ErrInvalidInput):
		return http.StatusUnprocessableEntity, "invalid_input", "Invalid catalog data"
	case errors.Is(err, plan.ErrInvalidConfiguration):
		return http.StatusBadRequest, "invalid_configuration", "Invalid fleet configuration"
	case errors.Is(err, milp.ErrInfeasible):
		return http.StatusConflict, "infeasible", "Model infeasible"
	case errors.Is(err, milp.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout", "Solve timed out"
	default:
		return http.StatusInternalServerError, "error", "Solve failed"
	}
}

// SolvesIndexHandler handles GET /v1/solves
func (s *Server) SolvesIndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/solves" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListSolves(r.Context(), tenant, cursor, limit)
	if err != nil {
		writeProblem(w, 500, "List solves failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

// SolveByIDHandler handles GET /v1/solves/{id} and the SSE stream at
// /v1/solves/{id}/events/stream
func (s *Server) SolveByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/solves/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if len(parts) > 2 && parts[1] == "events" && parts[2] == "stream" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		ch := s.Broker.Subscribe(id)
		defer s.Broker.Unsubscribe(id, ch)
		// initial heartbeat
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"solveId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
		flusher.Flush()
		notify := r.Context().Done()
		for {
			select {
			case <-notify:
				return
			case evt := <-ch:
				b, _ := json.Marshal(evt.Data)
				fmt.Fprintf(w, "event: %s\n", evt.Type)
				fmt.Fprintf(w, "data: %s\n\n", string(b))
				flusher.Flush()
			case <-time.After(15 * time.Second):
				fmt.Fprintf(w, "event: heartbeat\n")
				fmt.Fprintf(w, "data: {\"solveId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
				flusher.Flush()
			}
		}
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	sv, err := s.Store.GetSolve(r.Context(), tenant, id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Solve not found", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, sv)
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
			return
		}
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.TenantID == "" {
			req.TenantID = p.Tenant
		}
		if err := validateSubscriptionRequest(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
			return
		}
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Subscription delete (admin)
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/subscriptions/") {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(405)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil {
		writeProblem(w, 500, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(204)
}

// Admin: webhook deliveries list
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/webhook-deliveries" {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(405)
		return
	}
	status := r.URL.Query().Get("status")
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, status, cursor, limit)
	if err != nil {
		writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check DB connectivity when using Postgres store
	type pinger interface{ Ping(ctx context.Context) error }
	if pg, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}
