package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetmix/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu        sync.Mutex
	catalogs  map[string]model.CatalogOut     // id -> catalog
	catRoutes map[string][]model.RouteIn      // catalog id -> routes
	catsByTen map[string][]string             // tenant -> catalog ids
	solves    map[string]model.SolveOut       // id -> solve
	solvesTen map[string][]string             // tenant -> solve ids
	subs      map[string][]model.Subscription // tenant -> subscriptions
	// Webhook queue state
	deliveries         map[string]*memDelivery
	deliveriesByTenant map[string][]string
}

func NewMemory() *Memory {
	return &Memory{
		catalogs:           map[string]model.CatalogOut{},
		catRoutes:          map[string][]model.RouteIn{},
		catsByTen:          map[string][]string{},
		solves:             map[string]model.SolveOut{},
		solvesTen:          map[string][]string{},
		subs:               map[string][]model.Subscription{},
		deliveries:         map[string]*memDelivery{},
		deliveriesByTenant: map[string][]string{},
	}
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func (m *Memory) CreateCatalog(ctx context.Context, tenantID string, in model.CatalogIn) (model.CatalogOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	c := model.CatalogOut{ID: id, TenantID: tenantID, Name: in.Name, RouteCount: len(in.Routes), CreatedAt: time.Now().UTC().Format(time.RFC3339)}
	m.catalogs[id] = c
	m.catRoutes[id] = append([]model.RouteIn(nil), in.Routes...)
	m.catsByTen[tenantID] = append(m.catsByTen[tenantID], id)
	return c, nil
}

func (m *Memory) GetCatalog(ctx context.Context, tenantID, id string) (model.CatalogOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.catalogs[id]
	if !ok || c.TenantID != tenantID {
		return model.CatalogOut{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) GetCatalogRoutes(ctx context.Context, tenantID, id string) ([]model.RouteIn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.catalogs[id]
	if !ok || c.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return append([]model.RouteIn(nil), m.catRoutes[id]...), nil
}

func (m *Memory) ListCatalogs(ctx context.Context, tenantID, cursor string, limit int) ([]model.CatalogOut, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.catsByTen[tenantID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []model.CatalogOut{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.catalogs[ids[i]])
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) CreateSolve(ctx context.Context, tenantID string, req model.SolveRequest) (model.SolveOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	s := model.SolveOut{
		ID: id, TenantID: tenantID, CatalogID: req.CatalogID, Status: "running",
		FleetSize: req.FleetSize, WorkDaysPerMonth: req.WorkDaysPerMonth,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	m.solves[id] = s
	m.solvesTen[tenantID] = append(m.solvesTen[tenantID], id)
	return s, nil
}

func (m *Memory) CompleteSolve(ctx context.Context, tenantID, id string, res *model.OptimizationResult) (model.SolveOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.solves[id]
	if !ok || s.TenantID != tenantID {
		return model.SolveOut{}, ErrNotFound
	}
	s.Status = "completed"
	s.Result = res
	m.solves[id] = s
	return s, nil
}

func (m *Memory) FailSolve(ctx context.Context, tenantID, id, cause string) (model.SolveOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.solves[id]
	if !ok || s.TenantID != tenantID {
		return model.SolveOut{}, ErrNotFound
	}
	s.Status = "failed"
	s.Error = cause
	m.solves[id] = s
	return s, nil
}

func (m *Memory) GetSolve(ctx context.Context, tenantID, id string) (model.SolveOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.solves[id]
	if !ok || s.TenantID != tenantID {
		return model.SolveOut{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) ListSolves(ctx context.Context, tenantID, cursor string, limit int) ([]model.SolveOut, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.solvesTen[tenantID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []model.SolveOut{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.solves[ids[i]])
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs[tenantID] {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[tenantID]
	start := 0
	if cursor != "" {
		for i := range list {
			if list[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	end := start + limit
	if end > len(list) {
		end = len(list)
	}
	items := append([]model.Subscription(nil), list[start:end]...)
	next := ""
	if end < len(list) {
		next = list[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	arr := m.subs[tenantID]
	out := make([]model.Subscription, 0, len(arr))
	for _, s := range arr {
		if s.ID != id {
			out = append(out, s)
		}
	}
	m.subs[tenantID] = out
	return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	d := &memDelivery{WebhookDelivery: WebhookDelivery{
		ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType,
		URL: url, Secret: secret, Payload: payload, Status: "pending",
	}, NextAttemptAt: time.Now()}
	m.deliveries[id] = d
	m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, lst := range m.deliveriesByTenant {
		for _, id := range lst {
			d := m.deliveries[id]
			if d == nil {
				continue
			}
			if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
				out = append(out, d.WebhookDelivery)
				if limit > 0 && len(out) >= limit {
					return out, nil
				}
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return nil
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
	} else {
		d.Status = "retry"
		d.LastError = lastError
		if nextAttemptAt != nil {
			d.NextAttemptAt = *nextAttemptAt
		} else {
			d.NextAttemptAt = time.Now().Add(time.Minute)
		}
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return nil
	}
	d.Status = "failed"
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []map[string]any{}
	for _, id := range m.deliveriesByTenant[tenantID] {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if status == "" || d.Status == status {
			item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
			if !d.NextAttemptAt.IsZero() {
				item["nextAttemptAt"] = d.NextAttemptAt
			}
			if d.LastError != "" {
				item["lastError"] = d.LastError
			}
			out = append(out, item)
		}
	}
	return out, "", nil
}
