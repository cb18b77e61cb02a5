package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"glacierguard-api/config"
	"glacierguard-api/middleware"
	"glacierguard-api/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

const slowRequest = time.Second

// HealthChecker reports whether the backing database answers.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type RouterDeps struct {
	Config *config.Config
	Store  DetectionStore
	Health HealthChecker
	// DB backs the user accounts; auth routes are skipped when nil.
	DB    *gorm.DB
	Cache *services.CacheService
	Auth  *services.AuthService
}

func NewRouter(d RouterDeps) *gin.Engine {
	cfg := d.Config
	cache := d.Cache
	if cache == nil {
		cache = &services.CacheService{}
	}

	router := gin.New()
	router.Use(
		middleware.Recover(),
		middleware.RequestID(),
		middleware.AccessLog(slowRequest),
		middleware.Metrics(),
	)
	router.Use(middleware.SetupCORS(cfg.CORS)...)

	router.GET("/health", healthHandler(d.Health))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")

	if d.DB != nil && d.Auth != nil {
		ah := NewAuthHandler(d.DB, d.Auth)
		auth := api.Group("/auth")
		auth.POST("/register", ah.Register)
		auth.POST("/login", ah.Login)
		auth.POST("/logout", ah.Logout)
	}

	requireWrite := middleware.OptionalAuth(cfg.Auth.RequireForWrites, d.Auth)
	var liveAuth *services.AuthService
	if cfg.Auth.RequireForWrites {
		liveAuth = d.Auth
	}

	dh := NewDetectionHandler(d.Store, cache)
	det := api.Group("/detections")
	det.GET("", dh.List)
	det.GET("/summary", dh.Summary)
	det.GET("/live", LiveWebSocket(cache, liveAuth, originMatcher(cfg.CORS)))
	det.GET("/:id", dh.Get)
	det.POST("", requireWrite, dh.Create)
	det.PUT("/:id", requireWrite, dh.Update)
	det.DELETE("/:id", requireWrite, dh.Delete)

	return router
}

func healthHandler(hc HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if hc != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := hc.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "DOWN",
					"message": "database unreachable",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "UP",
			"message": "GlacierGuard detection API is running",
		})
	}
}

// originMatcher mirrors the CORS origin list for the websocket upgrade.
func originMatcher(cfg config.CORSConfig) func(string) bool {
	allowed := make(map[string]struct{})
	for _, o := range strings.Split(cfg.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = struct{}{}
		}
	}
	if _, all := allowed["*"]; all {
		return func(string) bool { return true }
	}
	return func(origin string) bool {
		_, ok := allowed[origin]
		return ok
	}
}
