/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:       Request logging
  2. Recoverer:    Panic recovery (500 instead of crash)
  3. RequestID:    Unique ID per request for tracing
  4. CORS:         Cross-origin requests for frontend
  5. Actor:        X-Employee-ID -> leave.Employee (all routes but health)
  6. RateLimit:    Token bucket per actor (Options.RateLimit > 0)
  7. Idempotency:  Idempotency-Key replay for POSTs (Options.Redis != nil)

ROUTE GROUPS:
  /api/health           Liveness, no actor
  /api/scenarios/*      Demo data, no actor (Options.EnableScenarios)
  /api/leave-types      Catalog
  /api/employees/*      Directory and balances
  /api/leave-requests/* Request lifecycle
  /api/admin/*          Admin operations

SECURITY NOTE:
  X-Employee-ID is trusted as given. Deploy behind a gateway that
  authenticates the caller and sets the header.

SEE ALSO:
  - handlers.go: Handler implementations
  - actor.go, ratelimit.go, idempotency.go: Middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Options configures the optional parts of the router.
type Options struct {
	AllowedOrigins []string

	// RateLimit is requests per second per actor; zero disables limiting.
	RateLimit rate.Limit
	RateBurst int

	// Redis enables Idempotency-Key handling when set.
	Redis *redis.Client

	EnableScenarios bool
}

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts Options) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = defaultOrigins
	}

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderEmployeeID, HeaderIdempotencyKey},
		ExposedHeaders:   []string{HeaderReplayed},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		if opts.EnableScenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Post("/load", h.LoadScenario)
			})
		}

		r.Group(func(r chi.Router) {
			r.Use(ActorMiddleware(h.Leave.Store))
			if opts.RateLimit > 0 {
				r.Use(RateLimitByActor(opts.RateLimit, opts.RateBurst))
			}
			if opts.Redis != nil {
				r.Use(Idempotency(opts.Redis, h.Logger.Named("idempotency")))
			}

			r.Get("/leave-types", h.ListLeaveTypes)

			// Employee routes
			r.Route("/employees", func(r chi.Router) {
				r.Get("/", h.ListEmployees)
				r.Post("/", h.CreateEmployee)
				r.Get("/me", h.GetMe)
				r.Get("/{id}/balances", h.GetBalances)
				r.Get("/{id}/balances/{type}/entries", h.GetEntries)
			})

			// Leave request routes
			r.Route("/leave-requests", func(r chi.Router) {
				r.Post("/", h.SubmitLeaveRequest)
				r.Post("/preview", h.PreviewLeaveRequest)
				r.Get("/mine", h.ListMyRequests)
				r.Get("/pending", h.ListPendingRequests)
				r.Post("/{id}/approve", h.ApproveRequest)
				r.Post("/{id}/reject", h.RejectRequest)
			})

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Post("/adjustments", h.CreateAdjustment)
			})
		})
	})

	return r
}
