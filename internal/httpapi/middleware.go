package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/casefunnel/lead-intake/internal/ratelimit"
	"github.com/casefunnel/lead-intake/internal/reqctx"
	"github.com/casefunnel/lead-intake/pkg/logger"
)

// RequestID assigns every request a request id (propagating X-Request-ID when
// the caller set one) and injects a request-scoped logger into the context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := reqctx.WithRequestID(c.Request.Context(), requestID)
		reqLogger := logger.Log.With(
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path))
		ctx = logger.WithLogger(ctx, reqLogger)

		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// RequestLogger logs one line per request after completion.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log := logger.FromContext(c.Request.Context())
		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("Request completed", fields...)
		} else {
			log.Info("Request completed", fields...)
		}
	}
}

// authClaims are the JWT claims issued by the managed auth provider.
type authClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	FirmID string `json:"firm_id"`
}

// Auth validates the Bearer token and places the actor into the request
// context. Tokens are HS256, signed with the secret shared with the auth
// provider.
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if len(header) < 8 || !strings.EqualFold(header[:7], "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "missing or invalid token"})
			return
		}
		tokenString := header[7:]

		claims := &authClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(jwtSecret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "missing or invalid token"})
			return
		}
		userID := claims.UserID
		if userID == "" {
			userID = claims.Subject
		}
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "token carries no user"})
			return
		}

		ctx := reqctx.WithActor(c.Request.Context(), userID, claims.FirmID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// InternalAuth gates /internal endpoints on the shared operations token.
func InternalAuth(internalToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if internalToken == "" || c.GetHeader("X-Internal-Token") != internalToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		c.Next()
	}
}

// RateLimit applies the limiter to the request, keyed by client identity.
// X-RateLimit headers are set on every response; a denied request gets 429
// with Retry-After.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := limiter.Check(c.Request.Context(), clientIdentifier(c))

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// clientIdentifier picks the rate-limit key: the authenticated user when
// present, otherwise the client IP (first X-Forwarded-For hop behind a
// trusted proxy).
func clientIdentifier(c *gin.Context) string {
	if userID, err := reqctx.UserIDFromContext(c.Request.Context()); err == nil {
		return "user:" + userID
	}
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return "ip:" + first
		}
	}
	if real := c.GetHeader("X-Real-IP"); real != "" {
		return "ip:" + real
	}
	if ip := c.ClientIP(); ip != "" {
		return "ip:" + ip
	}
	return "ip:unknown"
}
