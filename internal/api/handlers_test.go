package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"fleetmix/internal/config"
	"fleetmix/internal/milp"
	"fleetmix/internal/model"
	"fleetmix/internal/store"
)

// stubSolver returns an all-zero assignment (every route fully unserved at
// zero cost) or a fixed error. Handler tests only exercise the HTTP wiring;
// the model itself is covered in the plan package.
type stubSolver struct{ err error }

func (s stubSolver) Solve(ctx context.Context, m milp.Model) (milp.Solution, error) {
	if s.err != nil {
		return milp.Solution{}, s.err
	}
	return milp.Solution{Values: make([]float64, len(m.Vars))}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServerWith(config.Defaults(), store.NewMemory(), NewBroker(), stubSolver{})
}

const catalogBody = `{"name":"aug","routes":[
	{"from":"Tunis","to":"Sfax","monthlyDemand":30,"tripDurationDays":2,"companyCost":100,"returnEmptyCost":20,"thirdPartyCost":150},
	{"from":"Sfax","to":"Gabes","monthlyDemand":12,"tripDurationDays":1.5,"companyCost":80,"returnEmptyCost":10,"thirdPartyCost":95}
]}`

func createCatalog(t *testing.T, s *Server) string {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/catalogs", strings.NewReader(catalogBody))
	req.Header.Set("Content-Type", "application/json")
	s.CatalogsHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create catalog: %d %s", rr.Code, rr.Body.String())
	}
	var out model.CatalogOut
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode catalog: %v", err)
	}
	return out.ID
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestCatalogCreateListGet(t *testing.T) {
	s := newTestServer(t)
	id := createCatalog(t, s)

	rr := httptest.NewRecorder()
	s.CatalogsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/catalogs?limit=5", nil))
	if rr.Code != 200 {
		t.Fatalf("list catalogs: %d", rr.Code)
	}
	var list struct {
		Items []model.CatalogOut `json:"items"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &list)
	if len(list.Items) != 1 || list.Items[0].RouteCount != 2 {
		t.Fatalf("catalog list: %+v", list.Items)
	}

	rr = httptest.NewRecorder()
	s.CatalogByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/catalogs/"+id, nil))
	if rr.Code != 200 {
		t.Fatalf("get catalog: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.CatalogByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/catalogs/"+id+"/routes", nil))
	if rr.Code != 200 {
		t.Fatalf("get routes: %d", rr.Code)
	}
	var routes struct {
		Items []model.RouteIn `json:"items"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &routes)
	if len(routes.Items) != 2 || routes.Items[0].From != "Tunis" {
		t.Fatalf("routes: %+v", routes.Items)
	}
}

func TestCatalogRejectsBadRoutes(t *testing.T) {
	s := newTestServer(t)
	body := `{"routes":[{"from":"A","to":"B","monthlyDemand":-1,"tripDurationDays":1,"thirdPartyCost":1}]}`
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/catalogs", strings.NewReader(body))
	s.CatalogsHandler(rr, req)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("want 422, got %d", rr.Code)
	}
}

func TestCatalogImportCSV(t *testing.T) {
	s := newTestServer(t)
	csv := "from,to,monthly_demand,trip_duration_days,company_cost,return_empty_cost,third_party_cost\nTunis,Sfax,30,2,100,20,150\n"
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/catalogs/import?name=csv", strings.NewReader(csv))
	req.Header.Set("Content-Type", "text/csv")
	s.CatalogImportHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("import: %d %s", rr.Code, rr.Body.String())
	}
	var out model.CatalogOut
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	if out.RouteCount != 1 || out.Name != "csv" {
		t.Fatalf("imported catalog: %+v", out)
	}
}

func TestSolveFlowCompleted(t *testing.T) {
	s := newTestServer(t)
	id := createCatalog(t, s)

	body, _ := json.Marshal(model.SolveRequest{CatalogID: id, FleetSize: 3, WorkDaysPerMonth: 26})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.SolveHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("solve: %d %s", rr.Code, rr.Body.String())
	}
	var out model.SolveOut
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode solve: %v", err)
	}
	if out.Status != "completed" || out.Result == nil {
		t.Fatalf("solve out: %+v", out)
	}
	if len(out.Result.Decisions) != 2 {
		t.Fatalf("decisions: %+v", out.Result.Decisions)
	}
	// baseline is the all-outsourced cost of the two seeded routes
	if out.Result.BaselineCost != 30*150+12*95 {
		t.Fatalf("baseline: %v", out.Result.BaselineCost)
	}

	rr = httptest.NewRecorder()
	s.SolveByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/solves/"+out.ID, nil))
	if rr.Code != 200 {
		t.Fatalf("get solve: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.SolvesIndexHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/solves", nil))
	if rr.Code != 200 {
		t.Fatalf("list solves: %d", rr.Code)
	}
	var list struct {
		Items []model.SolveOut `json:"items"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &list)
	if len(list.Items) != 1 {
		t.Fatalf("solve list: %+v", list.Items)
	}
}

func TestSolveUnknownCatalog(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"catalogId":"missing","fleetSize":1,"workDaysPerMonth":26}`)
	rr := httptest.NewRecorder()
	s.SolveHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(body)))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rr.Code)
	}
}

func TestSolveRejectsBadConfig(t *testing.T) {
	s := newTestServer(t)
	id := createCatalog(t, s)
	body := []byte(`{"catalogId":"` + id + `","fleetSize":1,"workDaysPerMonth":0}`)
	rr := httptest.NewRecorder()
	s.SolveHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(body)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rr.Code)
	}
}

func TestSolveInfeasibleRecordsFailure(t *testing.T) {
	s := newTestServer(t)
	s.Planner.Solver = stubSolver{err: milp.ErrInfeasible}
	id := createCatalog(t, s)
	body := []byte(`{"catalogId":"` + id + `","fleetSize":1,"workDaysPerMonth":26}`)
	rr := httptest.NewRecorder()
	s.SolveHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(body)))
	if rr.Code != http.StatusConflict {
		t.Fatalf("want 409, got %d %s", rr.Code, rr.Body.String())
	}
	// the failed run is kept for audit
	list, _, err := s.Store.ListSolves(context.Background(), "t_demo", "", 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("solves: %v %v", list, err)
	}
	if list[0].Status != "failed" || list[0].Error == "" {
		t.Fatalf("failed solve: %+v", list[0])
	}
}

func TestSolveTimeoutMapsTo504(t *testing.T) {
	s := newTestServer(t)
	s.Planner.Solver = stubSolver{err: milp.ErrTimeout}
	id := createCatalog(t, s)
	body := []byte(`{"catalogId":"` + id + `","fleetSize":1,"workDaysPerMonth":26}`)
	rr := httptest.NewRecorder()
	s.SolveHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(body)))
	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("want 504, got %d", rr.Code)
	}
}

func TestSolveEnqueuesWebhook(t *testing.T) {
	s := newTestServer(t)
	subBody := []byte(`{"url":"https://example.invalid/webhook","events":["solve.completed"],"secret":"shh"}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(subBody))
	req.Header.Set("X-Role", "admin")
	s.SubscriptionsHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create sub: %d %s", rr.Code, rr.Body.String())
	}

	id := createCatalog(t, s)
	body := []byte(`{"catalogId":"` + id + `","fleetSize":1,"workDaysPerMonth":26}`)
	rr = httptest.NewRecorder()
	s.SolveHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(body)))
	if rr.Code != 200 {
		t.Fatalf("solve: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/admin/webhook-deliveries?limit=5", nil)
	req.Header.Set("X-Role", "admin")
	s.WebhookDeliveriesHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("deliveries: %d", rr.Code)
	}
	var dres struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &dres); err != nil {
		t.Fatalf("decode deliveries: %v", err)
	}
	if len(dres.Items) == 0 {
		t.Fatalf("expected at least one delivery")
	}
	if et, _ := dres.Items[0]["eventType"].(string); et != "solve.completed" {
		t.Fatalf("eventType: %v", dres.Items[0]["eventType"])
	}
}

func TestSolveRateLimited(t *testing.T) {
	cfg := config.Defaults()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 1
	s := NewServerWith(cfg, store.NewMemory(), NewBroker(), stubSolver{})
	id := createCatalog(t, s)
	body := []byte(`{"catalogId":"` + id + `","fleetSize":1,"workDaysPerMonth":26}`)
	rr := httptest.NewRecorder()
	s.SolveHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(body)))
	if rr.Code != 200 {
		t.Fatalf("first solve: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.SolveHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(body)))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("want 429, got %d", rr.Code)
	}
}

func TestSubscriptionValidation(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"url":"https://x","events":["order.created"]}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(body))
	req.Header.Set("X-Role", "admin")
	s.SubscriptionsHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rr.Code)
	}
}

func TestSolveForbiddenForViewer(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"catalogId":"x","fleetSize":1,"workDaysPerMonth":26}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(body))
	req.Header.Set("X-Role", "viewer")
	s.SolveHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("want 403, got %d", rr.Code)
	}
}

// sseRecorder is a minimal ResponseWriter that implements http.Flusher
// and captures writes for SSE tests. The handler writes from its own
// goroutine while the test polls, so the buffer is mutex-guarded.
type sseRecorder struct {
	hdr  http.Header
	mu   sync.Mutex
	buf  bytes.Buffer
	code int
}

func (r *sseRecorder) Header() http.Header {
	if r.hdr == nil {
		r.hdr = http.Header{}
	}
	return r.hdr
}
func (r *sseRecorder) WriteHeader(c int) { r.code = c }
func (r *sseRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}
func (r *sseRecorder) Flush() {}

func (r *sseRecorder) contains(s string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return bytes.Contains(r.buf.Bytes(), []byte(s))
}

func (r *sseRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

func TestSolveEventsSSE(t *testing.T) {
	s := newTestServer(t)
	id := createCatalog(t, s)
	body := []byte(`{"catalogId":"` + id + `","fleetSize":1,"workDaysPerMonth":26}`)
	rr := httptest.NewRecorder()
	s.SolveHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(body)))
	if rr.Code != 200 {
		t.Fatalf("solve: %d", rr.Code)
	}
	var out model.SolveOut
	_ = json.Unmarshal(rr.Body.Bytes(), &out)

	sseReq := httptest.NewRequest(http.MethodGet, "/v1/solves/"+out.ID+"/events/stream", nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sseReq = sseReq.WithContext(ctx)

	rec := &sseRecorder{}
	done := make(chan struct{})
	go func() {
		s.SolveByIDHandler(rec, sseReq)
		close(done)
	}()

	// Give the handler time to subscribe and send the heartbeat
	time.Sleep(50 * time.Millisecond)
	s.Broker.Publish(out.ID, SSEEvent{Type: "solve.completed", Data: map[string]any{"solveId": out.ID}})

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if rec.contains("event: solve.completed") {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !rec.contains("event: solve.completed") {
		t.Fatalf("SSE did not contain expected event. Body: %s", rec.String())
	}
	cancel()
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("handler did not exit after cancel")
	}
}
