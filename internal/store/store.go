package store

import (
	"context"
	"errors"
	"time"

	"fleetmix/internal/model"
)

// Store is the persistence interface used by the API server. Catalogs are
// write-once; solves are append-only snapshots of one optimization run.
type Store interface {
	// Catalogs
	CreateCatalog(ctx context.Context, tenantID string, in model.CatalogIn) (model.CatalogOut, error)
	GetCatalog(ctx context.Context, tenantID, id string) (model.CatalogOut, error)
	GetCatalogRoutes(ctx context.Context, tenantID, id string) ([]model.RouteIn, error)
	ListCatalogs(ctx context.Context, tenantID, cursor string, limit int) ([]model.CatalogOut, string, error)

	// Solves
	CreateSolve(ctx context.Context, tenantID string, req model.SolveRequest) (model.SolveOut, error)
	CompleteSolve(ctx context.Context, tenantID, id string, res *model.OptimizationResult) (model.SolveOut, error)
	FailSolve(ctx context.Context, tenantID, id, cause string) (model.SolveOut, error)
	GetSolve(ctx context.Context, tenantID, id string) (model.SolveOut, error)
	ListSolves(ctx context.Context, tenantID, cursor string, limit int) ([]model.SolveOut, string, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook delivery queue
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
}

var ErrNotFound = errors.New("not found")
