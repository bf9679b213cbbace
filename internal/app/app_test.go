package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/threatlens/internal/config"
	"github.com/jmerrifield20/threatlens/internal/events"
	"github.com/jmerrifield20/threatlens/internal/modelfile"
	"github.com/jmerrifield20/threatlens/internal/pattern"
	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Ledger: config.LedgerConfig{Backend: "memory"},
		Auth:   config.AuthConfig{Issuer: "threatlens", TokenTTL: time.Hour},
		Kafka:  config.KafkaConfig{Topic: "threatlens.analyses"},
	}
}

const extraPatterns = `
patterns:
  - id: custom-ftp
    name: Cleartext FTP
    category: information_disclosure
    applicableComponents: [process]
    conditions:
      - property: properties.protocols
        operator: contains
        value: ftp
        weight: 1
    threatTemplate:
      title: Cleartext FTP on {component}
      severity: high
      likelihood: medium
      impact: high
    confidence: 0.9
`

func TestBuild_memory(t *testing.T) {
	a, err := Build(context.Background(), memoryConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	if a.Tokens != nil {
		t.Error("expected auth disabled without a secret")
	}
	if _, ok := a.Publisher.(*events.NoopPublisher); !ok {
		t.Errorf("publisher = %T, want *events.NoopPublisher", a.Publisher)
	}

	_, err = a.Service.AnalyzeThreatModel(context.Background(), &tm.Request{
		ThreatModelID: "tm-app",
		Methodology:   tm.MethodologySTRIDE,
		Components:    []tm.Component{{ID: "api", Name: "API", Type: tm.ComponentProcess}},
	}, "")
	if err != nil {
		t.Fatalf("AnalyzeThreatModel: %v", err)
	}
	if n, _ := a.Ledger.Len(context.Background()); n != 2 {
		t.Errorf("ledger length = %d, want genesis + 1", n)
	}

	a.Health.CheckAll(context.Background())
	if !a.Health.Ready() {
		t.Errorf("expected ready, got %+v", a.Health.Snapshot())
	}
}

func TestBuild_authAndCache(t *testing.T) {
	cfg := memoryConfig()
	cfg.Auth.Secret = strings.Repeat("s", 32)
	cfg.Cache.TTL = time.Minute

	a, err := Build(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	if a.Tokens == nil {
		t.Fatal("expected token issuer")
	}
	tok, err := a.Tokens.Issue("alice", "analyst")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if claims, err := a.Tokens.Verify(tok); err != nil || claims.UserID != "alice" {
		t.Errorf("Verify: claims=%+v err=%v", claims, err)
	}
}

func TestBuild_extraPatterns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extra.yaml")
	if err := os.WriteFile(path, []byte(extraPatterns), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := memoryConfig()
	cfg.Patterns.ExtraFile = path

	a, err := Build(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	if _, err := a.Service.Matcher().Catalog().Get("custom-ftp"); err != nil {
		t.Errorf("extra pattern not loaded: %v", err)
	}
	if got, want := a.Service.Matcher().Catalog().Len(), len(pattern.BuiltinPatterns())+1; got != want {
		t.Errorf("catalog size = %d, want %d", got, want)
	}
}

func TestBuild_extraPatternsErrors(t *testing.T) {
	dir := t.TempDir()

	dup := filepath.Join(dir, "dup.yaml")
	body := strings.Replace(extraPatterns, "custom-ftp", "web-xss", 1)
	if err := os.WriteFile(dup, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{filepath.Join(dir, "missing.yaml"), dup} {
		cfg := memoryConfig()
		cfg.Patterns.ExtraFile = path
		if _, err := Build(context.Background(), cfg, zap.NewNop()); err == nil {
			t.Errorf("Build with %s: expected error", filepath.Base(path))
		}
	}
}

func TestStart_stopsOnCancel(t *testing.T) {
	a, err := Build(context.Background(), memoryConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	a.Start(ctx, 10*time.Millisecond)
	cancel()
}

func TestBuild_webhooks(t *testing.T) {
	cfg := memoryConfig()
	cfg.Webhooks.URLs = []string{"http://127.0.0.1:1/hook"}

	a, err := Build(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	if a.Webhooks == nil {
		t.Fatal("expected webhook publisher")
	}
	if a.Publisher != events.Publisher(a.Webhooks) {
		t.Errorf("publisher = %T, want the webhook publisher", a.Publisher)
	}
}

func TestBuild_analyzesExampleModel(t *testing.T) {
	req, err := modelfile.LoadFile(filepath.Join("..", "..", "examples", "checkout.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	a, err := Build(context.Background(), memoryConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	resp, err := a.Service.AnalyzeThreatModel(context.Background(), req, "")
	if err != nil {
		t.Fatalf("AnalyzeThreatModel: %v", err)
	}
	if len(resp.Threats) == 0 || resp.RiskAssessment.RiskLevel.Rank() == 0 {
		t.Errorf("expected threats and a risk level, got %d threats, level %q",
			len(resp.Threats), resp.RiskAssessment.RiskLevel)
	}
	var customerThreat bool
	for _, th := range resp.Threats {
		for _, id := range th.AffectedComponents {
			if id == "customers" {
				customerThreat = true
			}
		}
	}
	if !customerThreat {
		t.Error("expected a threat against the unencrypted customer database")
	}
}
