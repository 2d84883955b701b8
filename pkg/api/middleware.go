package api

import (
	"time"

	"github.com/OccDeser/uniclip/internal/telemetry"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CORS middleware
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed; a wildcard is answered with a literal "*"
		allowOrigin := ""
		for _, allowedOrigin := range allowedOrigins {
			if allowedOrigin == "*" {
				allowOrigin = "*"
				break
			}
			if allowedOrigin == origin {
				allowOrigin = origin
				break
			}
		}

		if allowOrigin != "" && origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			if allowOrigin != "*" {
				c.Writer.Header().Add("Vary", "Origin")
			}
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			c.Writer.Header().Set("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}

		c.Next()
	}
}

// Logger middleware
func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		if len(c.Errors) > 0 {
			for _, e := range c.Errors.Errors() {
				logger.Error("Request error",
					zap.String("path", path),
					zap.String("query", query),
					zap.String("method", c.Request.Method),
					zap.Int("status", c.Writer.Status()),
					zap.Duration("latency", latency),
					zap.String("error", e),
				)
			}
		} else {
			logger.Info("Request processed",
				zap.String("path", path),
				zap.String("query", query),
				zap.String("method", c.Request.Method),
				zap.Int("status", c.Writer.Status()),
				zap.Duration("latency", latency),
			)
		}
	}
}

// Recovery middleware
func recoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Request panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
				)

				c.AbortWithStatusJSON(500, APIError{
					Code:    500,
					Message: "Internal server error",
				})
			}
		}()

		c.Next()
	}
}

// Metrics middleware
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		telemetry.ObserveRequest(route, c.Writer.Status(), time.Since(start))
	}
}
