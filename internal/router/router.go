package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/consult-api/internal/handler/health"
	"github.com/jwalitptl/consult-api/internal/handler/prometheus"
	"github.com/jwalitptl/consult-api/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type RouterConfig struct {
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	RequestTimeout   time.Duration
	MaxBodyBytes     int64
	CORSConfig       middleware.CORSConfig
}

type Router struct {
	engine  *gin.Engine
	auth    *middleware.AuthMiddleware
	health  *health.Handler
	metrics *prometheus.Handler
	api     []Handler
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	healthH *health.Handler,
	metricsH *prometheus.Handler,
	config RouterConfig,
	api ...Handler,
) *Router {
	engine := gin.New()

	r := &Router{
		engine:  engine,
		auth:    auth,
		health:  healthH,
		metrics: metricsH,
		api:     api,
	}

	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = middleware.DefaultMaxBodySize
	}

	// Core middlewares, outermost first. ErrorHandler sits innermost so
	// the logger and metrics see the rendered status.
	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		metricsH.Middleware(),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(config.CORSConfig),
	)

	if config.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(limiter.RateLimit())
	}

	engine.Use(
		middleware.SizeLimit(config.MaxBodyBytes),
		middleware.Timeout(config.RequestTimeout),
		middleware.ErrorHandler(),
	)

	return r
}

func (r *Router) Setup() {
	r.health.RegisterRoutes(r.engine)
	r.engine.GET("/metrics", r.metrics.Handler())

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	for _, h := range r.api {
		h.RegisterRoutes(protected)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
