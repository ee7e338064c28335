// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package seam

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Rate limiter defaults. Analysis runs are heavyweight; the limiter keeps
// a misbehaving client from monopolizing the worker pool.
const (
	DefaultRateLimitRPS   = 10
	DefaultRateLimitBurst = 20
)

// RateLimitMiddleware rejects requests over the configured rate with 429.
//
// One shared limiter covers all clients; this service sits behind
// trusted tooling, not the public internet, so per-IP buckets would be
// overkill.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		rps = DefaultRateLimitRPS
	}
	if burst <= 0 {
		burst = DefaultRateLimitBurst
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "rate limit exceeded",
				Code:  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

// RequestIDMiddleware echoes or mints the correlation ID so every response
// carries one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := getOrCreateRequestID(c)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}
