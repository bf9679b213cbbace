package grpcapi_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/jmerrifield20/threatlens/internal/analysis"
	"github.com/jmerrifield20/threatlens/internal/dread"
	"github.com/jmerrifield20/threatlens/internal/grpcapi"
	"github.com/jmerrifield20/threatlens/internal/identity"
	"github.com/jmerrifield20/threatlens/internal/mitigation"
	"github.com/jmerrifield20/threatlens/internal/pattern"
	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

func startServer(t *testing.T, tokens *identity.TokenIssuer) *grpc.ClientConn {
	t.Helper()
	logger := zap.NewNop()
	svc := analysis.NewService(
		pattern.NewMatcher(pattern.DefaultCatalog(), logger),
		dread.NewCalculator(logger),
		mitigation.NewEngine(mitigation.BuiltinRules(), logger),
		logger,
	)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		identity.UnaryServerInterceptor(tokens),
		grpcapi.LoggingInterceptor(logger),
	))
	grpcapi.Register(srv, grpcapi.NewServer(svc, logger))
	go srv.Serve(lis) //nolint:errcheck
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func webRequest(m tm.Methodology) *tm.Request {
	return &tm.Request{
		ThreatModelID: "tm-grpc",
		Methodology:   m,
		Components: []tm.Component{
			{ID: "api", Name: "Public API", Type: tm.ComponentProcess,
				Properties: tm.ComponentProperties{InternetFacing: true, Authentication: []string{}, Protocols: []string{"http"}}},
			{ID: "db", Name: "Customer DB", Type: tm.ComponentDataStore,
				Properties: tm.ComponentProperties{Sensitive: true, Encryption: []string{}}},
		},
		DataFlows: []tm.DataFlow{{ID: "f1", Name: "queries", SourceID: "api", TargetID: "db", Sensitive: true}},
	}
}

func TestAnalyze_roundTrip(t *testing.T) {
	client := grpcapi.NewClient(startServer(t, nil))

	ctx := metadata.AppendToOutgoingContext(context.Background(), identity.UserIDHeader, "carol")
	resp, err := client.Analyze(ctx, webRequest(tm.MethodologySTRIDE))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if resp.ThreatModelID != "tm-grpc" || len(resp.Threats) == 0 {
		t.Errorf("unexpected response id=%q threats=%d", resp.ThreatModelID, len(resp.Threats))
	}
	if resp.AnalysisMetadata.UserID != "carol" {
		t.Errorf("userId = %q, want carol", resp.AnalysisMetadata.UserID)
	}
	if resp.RiskAssessment.OverallRiskScore <= 0 {
		t.Errorf("overall risk score = %v", resp.RiskAssessment.OverallRiskScore)
	}
}

func TestAnalyze_statusCodes(t *testing.T) {
	client := grpcapi.NewClient(startServer(t, nil))

	empty := webRequest(tm.MethodologySTRIDE)
	empty.Components = nil

	tests := []struct {
		name string
		req  *tm.Request
		want codes.Code
	}{
		{"invalid", empty, codes.InvalidArgument},
		{"not implemented", webRequest(tm.MethodologyTRIKE), codes.Unimplemented},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.Analyze(context.Background(), tc.req)
			if got := status.Code(err); got != tc.want {
				t.Errorf("code = %v, want %v (%v)", got, tc.want, err)
			}
		})
	}
}

func TestAnalyze_invalidToken(t *testing.T) {
	tokens, err := identity.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), "threatlens-test", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	client := grpcapi.NewClient(startServer(t, tokens))

	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer nope")
	_, err = client.Analyze(ctx, webRequest(tm.MethodologySTRIDE))
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(err))
	}

	tok, _ := tokens.Issue("dave", identity.RoleAnalyst)
	ctx = metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+tok)
	resp, err := client.Analyze(ctx, webRequest(tm.MethodologyPASTA))
	if err != nil {
		t.Fatalf("Analyze with token: %v", err)
	}
	if resp.AnalysisMetadata.UserID != "dave" {
		t.Errorf("userId = %q, want dave", resp.AnalysisMetadata.UserID)
	}
}

func TestListPatterns(t *testing.T) {
	client := grpcapi.NewClient(startServer(t, nil))
	ps, err := client.ListPatterns(context.Background())
	if err != nil {
		t.Fatalf("ListPatterns: %v", err)
	}
	if len(ps) != len(pattern.BuiltinPatterns()) {
		t.Errorf("got %d patterns, want %d", len(ps), len(pattern.BuiltinPatterns()))
	}
}

func TestGateway(t *testing.T) {
	conn := startServer(t, nil)
	mux, err := grpcapi.NewGateway(conn, zap.NewNop())
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	gw := httptest.NewServer(mux)
	defer gw.Close()

	body, _ := json.Marshal(webRequest(tm.MethodologySTRIDE))
	req, _ := http.NewRequest(http.MethodPost, gw.URL+"/v1/analyze", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(identity.UserIDHeader, "erin")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /v1/analyze: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	var resp tm.Response
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AnalysisMetadata.UserID != "erin" || len(resp.Threats) == 0 {
		t.Errorf("userId=%q threats=%d", resp.AnalysisMetadata.UserID, len(resp.Threats))
	}

	bad, err := http.Post(gw.URL+"/v1/analyze", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", bad.StatusCode)
	}

	empty := webRequest(tm.MethodologySTRIDE)
	empty.Components = nil
	body, _ = json.Marshal(empty)
	invalid, err := http.Post(gw.URL+"/v1/analyze", "application/json", strings.NewReader(string(body)))
	if err != nil {
		t.Fatal(err)
	}
	invalid.Body.Close()
	if invalid.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid model: expected 400, got %d", invalid.StatusCode)
	}

	pats, err := http.Get(gw.URL + "/v1/patterns")
	if err != nil {
		t.Fatal(err)
	}
	pats.Body.Close()
	if pats.StatusCode != http.StatusOK {
		t.Errorf("GET /v1/patterns: expected 200, got %d", pats.StatusCode)
	}
}
