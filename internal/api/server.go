package api

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"fleetmix/internal/auth"
	"fleetmix/internal/config"
	"fleetmix/internal/milp"
	"fleetmix/internal/milp/highs"
	"fleetmix/internal/plan"
	"fleetmix/internal/store"
	"fleetmix/internal/webhooks"
)

type Server struct {
	Cfg     config.Config
	Store   store.Store
	Pub     *webhooks.Publisher
	Auth    *auth.Verifier
	Broker  EventBroker
	Planner plan.Planner

	mu       sync.Mutex
	limiters map[string]*rate.Limiter // tenant -> solve rate limiter
}

// NewServer wires a Server from configuration. If DatabaseURL is unset, an
// in-memory store is used; if RedisURL is unset, the in-process broker.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		// Run migrations (dev helper)
		_ = sp.MigrateDir("db/migrations")
		s = sp
	}
	var broker EventBroker
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}
	return NewServerWith(cfg, s, broker, highs.New()), nil
}

// NewServerWith assembles a Server from explicit collaborators.
func NewServerWith(cfg config.Config, s store.Store, broker EventBroker, solver milp.Solver) *Server {
	return &Server{
		Cfg:      cfg,
		Store:    s,
		Pub:      webhooks.NewPublisher(s),
		Auth:     auth.NewVerifierFromEnv(),
		Broker:   broker,
		Planner:  plan.NewPlanner(solver),
		limiters: map[string]*rate.Limiter{},
	}
}

// limiter returns the per-tenant solve rate limiter.
func (s *Server) limiter(tenant string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limiters == nil {
		s.limiters = map[string]*rate.Limiter{}
	}
	l, ok := s.limiters[tenant]
	if !ok {
		rps := s.Cfg.RateRPS
		if rps <= 0 {
			rps = 5
		}
		burst := s.Cfg.RateBurst
		if burst <= 0 {
			burst = 10
		}
		l = rate.NewLimiter(rate.Limit(rps), burst)
		s.limiters[tenant] = l
	}
	return l
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
	tenant := s.getPrincipal(r).Tenant
	ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
	return ctx, tenant
}

type ctxKeyTenant struct{}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Cfg.WebhookMaxAttempts)
}
