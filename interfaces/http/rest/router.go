package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"postservice/interfaces/http/rest/handlers"
	"postservice/interfaces/http/rest/middleware"
	"postservice/pkg/auth"
	"postservice/pkg/observability"
)

// RouterConfig toggles the optional router features
type RouterConfig struct {
	EnableCORS     bool
	EnableMetrics  bool
	AllowedOrigins []string
}

// Router creates and configures the HTTP router
type Router struct {
	posts   *handlers.PostHandler
	health  *handlers.HealthHandler
	authn   *middleware.Authenticator
	limiter auth.RateLimiter
	metrics *observability.Metrics
	config  RouterConfig
	logger  *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	posts *handlers.PostHandler,
	health *handlers.HealthHandler,
	authn *middleware.Authenticator,
	limiter auth.RateLimiter,
	metrics *observability.Metrics,
	config RouterConfig,
	logger *zap.Logger,
) *Router {
	return &Router{
		posts:   posts,
		health:  health,
		authn:   authn,
		limiter: limiter,
		metrics: metrics,
		config:  config,
		logger:  logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger, rt.metrics))

	if rt.config.EnableCORS {
		origins := rt.config.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"http://localhost:3000"}
		}
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Health checks
	router.Get("/health", rt.health.Health)
	router.Get("/ready", rt.health.Ready)
	if rt.config.EnableMetrics {
		router.Handle("/metrics", rt.metrics.Handler())
	}

	router.Route("/api", func(r chi.Router) {
		// The limiter keys on the caller, so it runs after optional authentication
		r.Use(rt.authn.Optional)
		r.Use(middleware.RateLimit(rt.limiter, rt.logger))

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", rt.posts.ListPosts)
			r.With(rt.authn.Required).Post("/", rt.posts.CreatePost)

			r.Get("/parent/{id}", rt.posts.ListReplies)
			r.Get("/thread/{id}", rt.posts.GetThread)
			r.Get("/user/{username}", rt.posts.ListUserPosts)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", rt.posts.GetPost)
				r.With(rt.authn.Required).Delete("/", rt.posts.DeletePost)

				r.Group(func(r chi.Router) {
					r.Use(rt.authn.Required)
					r.Get("/like", rt.posts.GetLikeStatus)
					r.Post("/like", rt.posts.LikePost)
					r.Delete("/like", rt.posts.UnlikePost)
					r.Post("/view", rt.posts.ViewPost)
				})
			})
		})

		r.Route("/internal", func(r chi.Router) {
			r.Get("/posts/count", rt.posts.CountUserPosts)
		})
	})

	return router
}
