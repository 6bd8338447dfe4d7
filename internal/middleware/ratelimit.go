package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/requestdata"
	"github.com/wgelabs/lms-backend/internal/services"
)

type RateLimitMiddleware struct {
	log     *logger.Logger
	limiter services.RateLimitService
}

func NewRateLimitMiddleware(log *logger.Logger, limiter services.RateLimitService) *RateLimitMiddleware {
	middlewareLogger := log.With("middleware", "RateLimitMiddleware")
	return &RateLimitMiddleware{log: middlewareLogger, limiter: limiter}
}

// Limit applies the named route-class budget. Ingestion routes classify
// themselves in the handler (quiz submissions have their own budget), so this
// middleware serves the catch-all class.
func (rm *RateLimitMiddleware) Limit(routeClass string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := ClientIdentity(c)
		result, err := rm.limiter.Allow(c.Request.Context(), identity, routeClass)
		if err != nil {
			rm.log.Warn("rate limit check errored, allowing", "error", err)
			c.Next()
			return
		}
		SetRateHeaders(c, result)
		if !result.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"message": "rate limit exceeded",
					"code":    services.CodeRateLimited,
				},
				"retry_after_sec": int(result.RetryAfter.Seconds()) + 1,
			})
			return
		}
		c.Next()
	}
}

// ClientIdentity keys the limiter by verified user when available, falling
// back to the remote address for unauthenticated traffic.
func ClientIdentity(c *gin.Context) string {
	if rd := requestdata.GetRequestData(c.Request.Context()); rd != nil {
		return rd.UserID.String()
	}
	return c.ClientIP()
}

func SetRateHeaders(c *gin.Context, result *services.RateResult) {
	if result == nil {
		return
	}
	c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", result.Limit))
	c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
	if !result.Allowed {
		c.Header("Retry-After", fmt.Sprintf("%d", int(result.RetryAfter.Seconds())+1))
	}
}
