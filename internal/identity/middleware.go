package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const ctxClaims = "threatlens_claims"

// UserIDHeader carries a caller id forwarded by a trusted gateway. It is
// only honoured when token auth is disabled.
const UserIDHeader = "x-user-id"

func bearer(header string) (string, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(header, "Bearer "), true
}

// OptionalUser parses a Bearer token when one is present and stores its
// claims in the context. Missing tokens pass through; invalid ones are
// rejected so a caller never silently loses attribution. A nil issuer
// disables the check.
func OptionalUser(tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokens == nil {
			c.Next()
			return
		}
		tokenStr, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			c.Next()
			return
		}
		claims, err := tokens.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}
		c.Set(ctxClaims, claims)
		c.Next()
	}
}

// RequireAdmin enforces a valid Bearer token with the admin role. A nil
// issuer means auth is not configured and every request passes.
func RequireAdmin(tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokens == nil {
			c.Next()
			return
		}
		tokenStr, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "admin Bearer token required",
			})
			return
		}
		claims, err := tokens.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}
		if !claims.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "admin role required",
			})
			return
		}
		c.Set(ctxClaims, claims)
		c.Next()
	}
}

// ClaimsFromCtx returns the claims stored by OptionalUser or RequireAdmin,
// or nil.
func ClaimsFromCtx(c *gin.Context) *Claims {
	v, _ := c.Get(ctxClaims)
	claims, _ := v.(*Claims)
	return claims
}

// UserIDFromCtx returns the authenticated user id, or "".
func UserIDFromCtx(c *gin.Context) string {
	if claims := ClaimsFromCtx(c); claims != nil {
		return claims.UserID
	}
	return ""
}

type userIDKey struct{}

// WithUserID returns a context carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the user id stored by WithUserID, or "".
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

// UnaryServerInterceptor resolves the caller of a gRPC request. A Bearer
// token in the "authorization" metadata is verified when tokens is set;
// without tokens the x-user-id metadata is trusted as is.
func UnaryServerInterceptor(tokens *TokenIssuer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		first := func(key string) string {
			if v := md.Get(key); len(v) > 0 {
				return v[0]
			}
			return ""
		}

		if tokens == nil {
			if id := first(UserIDHeader); id != "" {
				ctx = WithUserID(ctx, id)
			}
			return handler(ctx, req)
		}

		if tokenStr, ok := bearer(first("authorization")); ok {
			claims, err := tokens.Verify(tokenStr)
			if err != nil {
				return nil, status.Error(codes.Unauthenticated, err.Error())
			}
			ctx = WithUserID(ctx, claims.UserID)
		}
		return handler(ctx, req)
	}
}
