package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/floodwatch/internal/identity"
	obscontext "github.com/smallbiznis/floodwatch/internal/observability/context"
	"github.com/smallbiznis/floodwatch/internal/ratelimit"
	"github.com/unrolled/secure"
)

const bearerPrefix = "bearer "

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

// AuthRequired rejects the request with 401 unless it carries a valid
// bearer token. The resolved identity is attached to the request context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		id, err := s.authsvc.Authenticate(c.Request.Context(), raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		s.attachIdentity(c, id)
		c.Next()
	}
}

// OptionalAuth attaches an identity when a valid token is present and lets
// the request through either way.
func (s *Server) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := bearerToken(c); raw != "" {
			if id, err := s.authsvc.Authenticate(c.Request.Context(), raw); err == nil {
				s.attachIdentity(c, id)
			}
		}
		c.Next()
	}
}

func (s *Server) attachIdentity(c *gin.Context, id identity.Identity) {
	ctx := identity.WithIdentity(c.Request.Context(), id)
	ctx = obscontext.WithActor(ctx, "account", id.AccountID.String())
	c.Request = c.Request.WithContext(ctx)
}

func currentIdentity(c *gin.Context) identity.Identity {
	id, _ := identity.FromContext(c.Request.Context())
	return id
}

// RateLimit draws from scope's bucket, keyed by the caller's account when
// authenticated and by client IP otherwise.
func (s *Server) RateLimit(scope ratelimit.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := "ip:" + c.ClientIP()
		if id, ok := identity.FromContext(c.Request.Context()); ok {
			subject = "account:" + id.AccountID.String()
		}

		res := s.limiter.Allow(c.Request.Context(), scope, subject)
		if res.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		}
		if !res.Allowed {
			seconds := int(math.Ceil(res.RetryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func secureOptions(isDevelopment bool) secure.Options {
	return secure.Options{
		IsDevelopment:         isDevelopment,
		ContentTypeNosniff:    true,
		FrameDeny:             true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}
}

// SecureHeaders applies unrolled/secure to every response.
func SecureHeaders(opts secure.Options) gin.HandlerFunc {
	sec := secure.New(opts)
	return func(c *gin.Context) {
		if err := sec.Process(c.Writer, c.Request); err != nil {
			c.Abort()
			return
		}
		// secure may have already written a redirect
		if status := c.Writer.Status(); status > 300 && status < 399 && c.Writer.Written() {
			c.Abort()
			return
		}
		c.Next()
	}
}
