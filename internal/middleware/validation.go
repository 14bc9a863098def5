package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"bookkeeper-api/internal/models"
)

// RateLimiter caps the request rate across all clients. The service is
// local-first; a single shared limiter is enough.
func RateLimiter(requestsPerSecond float64, burstSize int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(requestsPerSecond), burstSize)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			logrus.WithFields(logrus.Fields{
				"client_ip": c.ClientIP(),
				"path":      c.Request.URL.Path,
			}).Warn("Rate limit exceeded")

			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.NewErrorEnvelope(
				models.ErrKindInternal,
				fmt.Sprintf("too many requests, limit is %.1f per second", requestsPerSecond),
			))
			return
		}
		c.Next()
	}
}

// RequestSizeLimit rejects bodies above maxSize. Receipt images arrive
// base64-encoded in JSON, so the ceiling has to leave room for that overhead.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, models.NewErrorEnvelope(
				models.ErrKindValidation,
				fmt.Sprintf("request body exceeds the %d byte limit", maxSize),
			))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// SecurityHeaders adds standard security headers to responses
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}
