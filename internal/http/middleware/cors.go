package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var corsExpose = []string{requestIDHeader, "Idempotency-Replayed", "Content-Length"}

// ChatCORS is the posture for visitor routes: any site may embed the widget,
// so every response carries Access-Control-Allow-Origin: * even without an
// Origin header. Preflights are answered with 204.
func ChatCORS() gin.HandlerFunc {
	inner := cors.New(cors.Config{
		AllowAllOrigins:           true,
		AllowMethods:              []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:              []string{"Origin", "Content-Type", "Accept", HeaderIdempotencyKey},
		ExposeHeaders:             corsExpose,
		AllowCredentials:          false,
		MaxAge:                    24 * time.Hour,
		OptionsResponseStatusCode: 204,
	})
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		inner(c)
	}
}

// AdminCORS serves the dashboard. With no allowlist every origin is accepted
// without credentials; with one, listed origins may send the auth cookie.
func AdminCORS(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:              []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:              []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", HeaderIdempotencyKey},
		ExposeHeaders:             append([]string{"ETag"}, corsExpose...),
		MaxAge:                    12 * time.Hour,
		OptionsResponseStatusCode: 204,
	}
	if len(allowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}
