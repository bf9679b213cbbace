package identity_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/jmerrifield20/threatlens/internal/identity"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestIssuer(t *testing.T, ttl time.Duration) *identity.TokenIssuer {
	t.Helper()
	ti, err := identity.NewTokenIssuer([]byte(testSecret), "https://threatlens.test", ttl)
	if err != nil {
		t.Fatal(err)
	}
	return ti
}

func TestNewTokenIssuer_shortSecret(t *testing.T) {
	if _, err := identity.NewTokenIssuer([]byte("short"), "iss", 0); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestTokenIssuer_roundTrip(t *testing.T) {
	ti := newTestIssuer(t, time.Hour)

	token, err := ti.Issue("alice", identity.RoleAnalyst)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Errorf("expected 3-part JWT, got %d parts", len(parts))
	}

	claims, err := ti.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if claims.UserID != "alice" || claims.Subject != "alice" {
		t.Errorf("user: got %q / %q", claims.UserID, claims.Subject)
	}
	if claims.IsAdmin() {
		t.Error("analyst token must not be admin")
	}
}

func TestTokenIssuer_rejects(t *testing.T) {
	ti := newTestIssuer(t, time.Hour)

	if _, err := ti.Issue("bob", "root"); err == nil {
		t.Error("expected error for unknown role")
	}
	if _, err := ti.Issue("", identity.RoleAdmin); err == nil {
		t.Error("expected error for empty user id")
	}

	other, _ := identity.NewTokenIssuer([]byte(strings.Repeat("x", 32)), "https://threatlens.test", time.Hour)
	foreign, _ := other.Issue("mallory", identity.RoleAdmin)
	if _, err := ti.Verify(foreign); err == nil {
		t.Error("expected error for token signed with another secret")
	}

	expiring := newTestIssuer(t, time.Nanosecond)
	token, _ := expiring.Issue("carol", identity.RoleAnalyst)
	time.Sleep(5 * time.Millisecond)
	if _, err := expiring.Verify(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func newRouter(tokens *identity.TokenIssuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", identity.OptionalUser(tokens), func(c *gin.Context) {
		c.String(http.StatusOK, identity.UserIDFromCtx(c))
	})
	r.DELETE("/admin", identity.RequireAdmin(tokens), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestOptionalUser(t *testing.T) {
	ti := newTestIssuer(t, time.Hour)
	r := newRouter(ti)
	token, _ := ti.Issue("alice", identity.RoleAnalyst)

	if w := do(r, http.MethodGet, "/whoami", ""); w.Code != http.StatusOK || w.Body.String() != "" {
		t.Errorf("anonymous: got %d %q", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodGet, "/whoami", token); w.Body.String() != "alice" {
		t.Errorf("authenticated: got %q", w.Body.String())
	}
	if w := do(r, http.MethodGet, "/whoami", "garbage"); w.Code != http.StatusUnauthorized {
		t.Errorf("invalid token: got %d, want 401", w.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	ti := newTestIssuer(t, time.Hour)
	r := newRouter(ti)
	analyst, _ := ti.Issue("alice", identity.RoleAnalyst)
	admin, _ := ti.Issue("root", identity.RoleAdmin)

	cases := []struct {
		token string
		want  int
	}{
		{"", http.StatusUnauthorized},
		{analyst, http.StatusForbidden},
		{admin, http.StatusNoContent},
	}
	for _, tc := range cases {
		if w := do(r, http.MethodDelete, "/admin", tc.token); w.Code != tc.want {
			t.Errorf("token %q: got %d, want %d", tc.token, w.Code, tc.want)
		}
	}

	if w := do(newRouter(nil), http.MethodDelete, "/admin", ""); w.Code != http.StatusNoContent {
		t.Errorf("auth disabled: got %d, want 204", w.Code)
	}
}

func TestUnaryServerInterceptor(t *testing.T) {
	ti := newTestIssuer(t, time.Hour)
	token, _ := ti.Issue("alice", identity.RoleAnalyst)
	info := &grpc.UnaryServerInfo{FullMethod: "/threatlens.v1.AnalysisService/Analyze"}
	echo := func(ctx context.Context, _ any) (any, error) {
		return identity.UserIDFromContext(ctx), nil
	}

	withMD := func(kv ...string) context.Context {
		return metadata.NewIncomingContext(context.Background(), metadata.Pairs(kv...))
	}

	got, err := identity.UnaryServerInterceptor(ti)(withMD("authorization", "Bearer "+token), nil, info, echo)
	if err != nil || got != "alice" {
		t.Errorf("bearer: got %v, %v", got, err)
	}

	_, err = identity.UnaryServerInterceptor(ti)(withMD("authorization", "Bearer nope"), nil, info, echo)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("invalid bearer: got %v", err)
	}

	got, _ = identity.UnaryServerInterceptor(ti)(withMD(identity.UserIDHeader, "spoofed"), nil, info, echo)
	if got != "" {
		t.Errorf("x-user-id must be ignored when tokens are configured, got %v", got)
	}

	got, _ = identity.UnaryServerInterceptor(nil)(withMD(identity.UserIDHeader, "gateway-user"), nil, info, echo)
	if got != "gateway-user" {
		t.Errorf("x-user-id without tokens: got %v", got)
	}
}
