package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fleetmix/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies every .sql file in dir in lexical order. Dev helper;
// production deploys run migrations out of band.
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(b)); err != nil {
			return fmt.Errorf("migrate %s: %w", name, err)
		}
	}
	return nil
}

// CreateCatalog inserts the catalog header plus one row per route in a single
// transaction.
func (p *Postgres) CreateCatalog(ctx context.Context, tenantID string, in model.CatalogIn) (model.CatalogOut, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.CatalogOut{}, err
	}
	defer func() { _ = tx.Rollback() }()

	id := uuid.New().String()
	var createdAt time.Time
	err = tx.QueryRowContext(ctx, `INSERT INTO catalogs (id, tenant_id, name, route_count) VALUES ($1,$2,$3,$4) RETURNING created_at`,
		id, tenantID, nullIfEmpty(in.Name), len(in.Routes)).Scan(&createdAt)
	if err != nil {
		return model.CatalogOut{}, err
	}
	for i, r := range in.Routes {
		_, err = tx.ExecContext(ctx, `INSERT INTO catalog_routes (catalog_id, tenant_id, seq, from_loc, to_loc, monthly_demand, trip_duration_days, company_cost, return_empty_cost, third_party_cost)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			id, tenantID, i, r.From, r.To, r.MonthlyDemand, r.TripDurationDays, r.CompanyCost, r.ReturnEmptyCost, r.ThirdPartyCost)
		if err != nil {
			return model.CatalogOut{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return model.CatalogOut{}, err
	}
	return model.CatalogOut{ID: id, TenantID: tenantID, Name: in.Name, RouteCount: len(in.Routes), CreatedAt: createdAt.UTC().Format(time.RFC3339)}, nil
}

func (p *Postgres) GetCatalog(ctx context.Context, tenantID, id string) (model.CatalogOut, error) {
	var c model.CatalogOut
	var name sql.NullString
	var createdAt time.Time
	row := p.db.QueryRowContext(ctx, `SELECT id::text, name, route_count, created_at FROM catalogs WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err := row.Scan(&c.ID, &name, &c.RouteCount, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, ErrNotFound
		}
		return c, err
	}
	c.TenantID = tenantID
	c.Name = name.String
	c.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	return c, nil
}

func (p *Postgres) GetCatalogRoutes(ctx context.Context, tenantID, id string) ([]model.RouteIn, error) {
	if _, err := p.GetCatalog(ctx, tenantID, id); err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, `SELECT from_loc, to_loc, monthly_demand, trip_duration_days, company_cost, return_empty_cost, third_party_cost
		FROM catalog_routes WHERE tenant_id=$1 AND catalog_id=$2 ORDER BY seq`, tenantID, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.RouteIn{}
	for rows.Next() {
		var r model.RouteIn
		if err := rows.Scan(&r.From, &r.To, &r.MonthlyDemand, &r.TripDurationDays, &r.CompanyCost, &r.ReturnEmptyCost, &r.ThirdPartyCost); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) ListCatalogs(ctx context.Context, tenantID, cursor string, limit int) ([]model.CatalogOut, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, name, route_count, created_at FROM catalogs WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, name, route_count, created_at FROM catalogs WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.CatalogOut{}
	var last string
	for rows.Next() {
		var c model.CatalogOut
		var name sql.NullString
		var createdAt time.Time
		if err := rows.Scan(&c.ID, &name, &c.RouteCount, &createdAt); err != nil {
			return nil, "", err
		}
		c.TenantID = tenantID
		c.Name = name.String
		c.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		out = append(out, c)
		last = c.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func (p *Postgres) CreateSolve(ctx context.Context, tenantID string, req model.SolveRequest) (model.SolveOut, error) {
	id := uuid.New().String()
	var createdAt time.Time
	err := p.db.QueryRowContext(ctx, `INSERT INTO solves (id, tenant_id, catalog_id, status, fleet_size, work_days)
		VALUES ($1,$2,$3,'running',$4,$5) RETURNING created_at`,
		id, tenantID, req.CatalogID, req.FleetSize, req.WorkDaysPerMonth).Scan(&createdAt)
	if err != nil {
		return model.SolveOut{}, err
	}
	return model.SolveOut{
		ID: id, TenantID: tenantID, CatalogID: req.CatalogID, Status: "running",
		FleetSize: req.FleetSize, WorkDaysPerMonth: req.WorkDaysPerMonth,
		CreatedAt: createdAt.UTC().Format(time.RFC3339),
	}, nil
}

func (p *Postgres) CompleteSolve(ctx context.Context, tenantID, id string, res *model.OptimizationResult) (model.SolveOut, error) {
	b, err := json.Marshal(res)
	if err != nil {
		return model.SolveOut{}, err
	}
	tag, err := p.db.ExecContext(ctx, `UPDATE solves SET status='completed', result=$3, updated_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id, b)
	if err != nil {
		return model.SolveOut{}, err
	}
	if n, _ := tag.RowsAffected(); n == 0 {
		return model.SolveOut{}, ErrNotFound
	}
	return p.GetSolve(ctx, tenantID, id)
}

func (p *Postgres) FailSolve(ctx context.Context, tenantID, id, cause string) (model.SolveOut, error) {
	tag, err := p.db.ExecContext(ctx, `UPDATE solves SET status='failed', error=$3, updated_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id, nullIfEmpty(cause))
	if err != nil {
		return model.SolveOut{}, err
	}
	if n, _ := tag.RowsAffected(); n == 0 {
		return model.SolveOut{}, ErrNotFound
	}
	return p.GetSolve(ctx, tenantID, id)
}

func (p *Postgres) GetSolve(ctx context.Context, tenantID, id string) (model.SolveOut, error) {
	var s model.SolveOut
	var result []byte
	var cause sql.NullString
	var createdAt time.Time
	row := p.db.QueryRowContext(ctx, `SELECT id::text, catalog_id::text, status, fleet_size, work_days, result, error, created_at
		FROM solves WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err := row.Scan(&s.ID, &s.CatalogID, &s.Status, &s.FleetSize, &s.WorkDaysPerMonth, &result, &cause, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s, ErrNotFound
		}
		return s, err
	}
	s.TenantID = tenantID
	s.Error = cause.String
	s.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	if len(result) > 0 {
		var res model.OptimizationResult
		if err := json.Unmarshal(result, &res); err == nil {
			s.Result = &res
		}
	}
	return s, nil
}

func (p *Postgres) ListSolves(ctx context.Context, tenantID, cursor string, limit int) ([]model.SolveOut, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, catalog_id::text, status, fleet_size, work_days, result, error, created_at
			FROM solves WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, catalog_id::text, status, fleet_size, work_days, result, error, created_at
			FROM solves WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.SolveOut{}
	var last string
	for rows.Next() {
		var s model.SolveOut
		var result []byte
		var cause sql.NullString
		var createdAt time.Time
		if err := rows.Scan(&s.ID, &s.CatalogID, &s.Status, &s.FleetSize, &s.WorkDaysPerMonth, &result, &cause, &createdAt); err != nil {
			return nil, "", err
		}
		s.TenantID = tenantID
		s.Error = cause.String
		s.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		if len(result) > 0 {
			var res model.OptimizationResult
			if err := json.Unmarshal(result, &res); err == nil {
				s.Result = &res
			}
		}
		out = append(out, s)
		last = s.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	ev, _ := json.Marshal(req.Events)
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`, id, req.TenantID, req.URL, ev, req.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 AND events @> $2::jsonb`, tenantID, fmt.Sprintf("[%q]", eventType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil {
			return nil, err
		}
		s.TenantID = tenantID
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
	}
	return out, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	var out []model.Subscription
	var last string
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil {
			return nil, "", err
		}
		s.TenantID = tenantID
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
		last = s.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return err
}

// Webhook deliveries
func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	dk := computeDedupKey(payload)
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now(),$8)
		ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING`, id, tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, dk)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
		FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		var payload []byte
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		d.Payload = payload
		out = append(out, d)
	}
	return out, nil
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if !success {
		if nextAttemptAt == nil {
			t := time.Now().Add(time.Minute)
			nextAttemptAt = &t
		}
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
			id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, event_type, status, attempts, next_attempt_at, last_error, url FROM webhook_deliveries WHERE tenant_id=$1`
	var rows *sql.Rows
	var err error
	if status != "" {
		q += ` AND status=$2 ORDER BY id LIMIT $3`
		rows, err = p.db.QueryContext(ctx, q, tenantID, status, limit)
	} else {
		q += ` ORDER BY id LIMIT $2`
		rows, err = p.db.QueryContext(ctx, q, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	var last string
	for rows.Next() {
		var id, typ, st, url string
		var lastErr sql.NullString
		var attempts int
		var nextAt sql.NullTime
		if err := rows.Scan(&id, &typ, &st, &attempts, &nextAt, &lastErr, &url); err != nil {
			return nil, "", err
		}
		m := map[string]any{"id": id, "eventType": typ, "status": st, "attempts": attempts, "url": url}
		if nextAt.Valid {
			m["nextAttemptAt"] = nextAt.Time
		}
		if lastErr.String != "" {
			m["lastError"] = lastErr.String
		}
		out = append(out, m)
		last = id
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// computeDedupKey collapses duplicate event deliveries: prefer the event's own
// id, fall back to a payload digest.
func computeDedupKey(payload []byte) string {
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}
