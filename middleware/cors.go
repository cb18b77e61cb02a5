package middleware

import (
	"strings"
	"time"

	"glacierguard-api/config"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var corsMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}

// SetupCORS allows the configured origins with credentials. A single "*"
// allows every origin, without credentials.
func SetupCORS(cfg config.CORSConfig) []gin.HandlerFunc {
	var allowedOrigins []string
	for _, o := range strings.Split(cfg.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowedOrigins = append(allowedOrigins, o)
		}
	}

	base := cors.Config{
		AllowMethods:  corsMethods,
		ExposeHeaders: []string{"Content-Length", RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	switch {
	case len(allowedOrigins) == 1 && allowedOrigins[0] == "*":
		base.AllowAllOrigins = true
	case len(allowedOrigins) == 0:
		base.AllowOriginFunc = func(string) bool { return false }
	default:
		base.AllowOrigins = allowedOrigins
		base.AllowCredentials = true
	}

	return []gin.HandlerFunc{allowRequestedHeaders, cors.New(base)}
}

// allowRequestedHeaders answers a preflight with whatever headers it asked
// for. It runs before the cors handler, which leaves the header alone when
// AllowHeaders is empty.
func allowRequestedHeaders(c *gin.Context) {
	if c.Request.Method == "OPTIONS" {
		if requested := c.GetHeader("Access-Control-Request-Headers"); requested != "" {
			c.Header("Access-Control-Allow-Headers", requested)
			c.Writer.Header().Add("Vary", "Access-Control-Request-Headers")
		}
	}
	c.Next()
}
