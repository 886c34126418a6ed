package server

import (
	"net/http"
	"strconv"
	"time"

	"MarketSettle/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// identityHeader carries the caller's identity, set by the edge proxy after
// authentication. The service trusts it as-is; there is no signature check.
const identityHeader = "X-Trusted-Identity"

const identityKey = "identity"

// requireIdentity rejects requests without a parseable identity header.
func requireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(identityHeader)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + identityHeader + " header"})
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "malformed identity"})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func callerIdentity(c *gin.Context) uuid.UUID {
	return c.MustGet(identityKey).(uuid.UUID)
}

// requestMetrics records per-route counters and latency.
func requestMetrics(metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
