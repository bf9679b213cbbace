package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jmerrifield20/threatlens/pkg/client"
	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// ── Stub server ─────────────────────────────────────────────────────────

func stubServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/analyses", func(w http.ResponseWriter, r *http.Request) {
		var req tm.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Components) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "validation error: at least one component is required"})
			return
		}
		user := ""
		if auth := r.Header.Get("Authorization"); auth == "Bearer good" {
			user = "alice"
		}
		json.NewEncoder(w).Encode(tm.Response{
			ThreatModelID: req.ThreatModelID,
			Methodology:   req.Methodology,
			Threats:       []tm.IdentifiedThreat{{ID: "t1", Title: "Spoofed caller", Category: tm.CategorySpoofing}},
			RiskAssessment: tm.RiskAssessment{
				OverallRiskScore: 6.5,
				RiskLevel:        tm.RiskHigh,
			},
			AnalysisMetadata: tm.AnalysisMetadata{AnalysisID: "a1", UserID: user},
		})
	})

	mux.HandleFunc("GET /api/v1/methodologies", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"methodologies": []string{"pasta", "stride"}})
	})

	mux.HandleFunc("GET /api/v1/patterns", func(w http.ResponseWriter, r *http.Request) {
		ps := []map[string]any{
			{"id": "web-xss", "name": "Cross-Site Scripting", "category": "tampering", "confidence": 0.8},
			{"id": "db-plaintext", "name": "Plaintext store", "category": "information_disclosure", "confidence": 0.7},
		}
		if cat := r.URL.Query().Get("category"); cat != "" {
			filtered := ps[:0]
			for _, p := range ps {
				if p["category"] == cat {
					filtered = append(filtered, p)
				}
			}
			ps = filtered
		}
		json.NewEncoder(w).Encode(map[string]any{"patterns": ps, "total": len(ps)})
	})

	mux.HandleFunc("GET /api/v1/patterns/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "web-xss" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "pattern not found"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "web-xss"})
	})

	mux.HandleFunc("DELETE /api/v1/patterns/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer admin" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "admin Bearer token required"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/v1/ledger", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"entries": 3, "head": "abc"})
	})

	mux.HandleFunc("GET /api/v1/ledger/verify", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"valid": false, "brokenAt": 2, "error": "hash mismatch"})
	})

	mux.HandleFunc("POST /api/v1/dread", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"dread":     map[string]any{"damage": 7, "overallScore": 6.8},
			"riskLevel": "high",
			"threat":    map[string]any{"title": "x", "severity": "high"},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func sampleRequest() *tm.Request {
	return &tm.Request{
		ThreatModelID: "tm-1",
		Methodology:   tm.MethodologySTRIDE,
		Components:    []tm.Component{{ID: "api", Name: "API", Type: tm.ComponentProcess}},
	}
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestNew_invalidURL(t *testing.T) {
	for _, base := range []string{"", "localhost:8080", "://nope"} {
		if _, err := client.New(base); err == nil {
			t.Errorf("New(%q): expected error", base)
		}
	}
	if _, err := client.New("http://x", client.WithHTTPClient(nil)); err == nil {
		t.Error("expected error for nil http client")
	}
}

func TestAnalyze(t *testing.T) {
	srv := stubServer(t)
	c := client.MustNew(srv.URL + "/")

	resp, err := c.Analyze(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if resp.ThreatModelID != "tm-1" || len(resp.Threats) != 1 {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.RiskAssessment.RiskLevel != tm.RiskHigh {
		t.Errorf("risk level = %q", resp.RiskAssessment.RiskLevel)
	}
	if resp.AnalysisMetadata.UserID != "" {
		t.Errorf("anonymous call attributed to %q", resp.AnalysisMetadata.UserID)
	}
}

func TestAnalyze_withToken(t *testing.T) {
	srv := stubServer(t)
	c := client.MustNew(srv.URL, client.WithBearerToken("good"))

	resp, err := c.Analyze(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if resp.AnalysisMetadata.UserID != "alice" {
		t.Errorf("userId = %q, want alice", resp.AnalysisMetadata.UserID)
	}
}

func TestAnalyze_validationError(t *testing.T) {
	srv := stubServer(t)
	c := client.MustNew(srv.URL)

	req := sampleRequest()
	req.Components = nil
	_, err := c.Analyze(context.Background(), req)

	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || !strings.Contains(apiErr.Message, "component") {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestMethodologies(t *testing.T) {
	srv := stubServer(t)
	ms, err := client.MustNew(srv.URL).Methodologies(context.Background())
	if err != nil {
		t.Fatalf("Methodologies: %v", err)
	}
	if len(ms) != 2 || ms[1] != tm.MethodologySTRIDE {
		t.Errorf("methodologies = %v", ms)
	}
}

func TestListPatterns(t *testing.T) {
	srv := stubServer(t)
	c := client.MustNew(srv.URL)

	all, err := c.ListPatterns(context.Background(), "", "")
	if err != nil {
		t.Fatalf("ListPatterns: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d patterns, want 2", len(all))
	}

	tampering, err := c.ListPatterns(context.Background(), tm.CategoryTampering, "")
	if err != nil {
		t.Fatalf("ListPatterns filtered: %v", err)
	}
	if len(tampering) != 1 || tampering[0].ID != "web-xss" {
		t.Errorf("filtered = %+v", tampering)
	}
}

func TestGetPattern_notFound(t *testing.T) {
	srv := stubServer(t)
	c := client.MustNew(srv.URL)

	if _, err := c.GetPattern(context.Background(), "web-xss"); err != nil {
		t.Fatalf("GetPattern: %v", err)
	}
	_, err := c.GetPattern(context.Background(), "missing")
	if !errors.Is(err, client.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRemovePattern_requiresAdmin(t *testing.T) {
	srv := stubServer(t)

	err := client.MustNew(srv.URL).RemovePattern(context.Background(), "web-xss")
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 APIError, got %v", err)
	}

	if err := client.MustNew(srv.URL, client.WithBearerToken("admin")).RemovePattern(context.Background(), "web-xss"); err != nil {
		t.Errorf("admin RemovePattern: %v", err)
	}
}

func TestLedger(t *testing.T) {
	srv := stubServer(t)
	c := client.MustNew(srv.URL)

	ov, err := c.Ledger(context.Background())
	if err != nil {
		t.Fatalf("Ledger: %v", err)
	}
	if ov.Entries != 3 || ov.Head != "abc" {
		t.Errorf("overview = %+v", ov)
	}

	v, err := c.VerifyLedger(context.Background())
	if err != nil {
		t.Fatalf("VerifyLedger: %v", err)
	}
	if v.Valid || v.BrokenAt != 2 || v.Error != "hash mismatch" {
		t.Errorf("verification = %+v", v)
	}
}

func TestScoreDread(t *testing.T) {
	srv := stubServer(t)
	res, err := client.MustNew(srv.URL).ScoreDread(context.Background(),
		tm.IdentifiedThreat{Title: "x", Category: tm.CategorySpoofing}, nil)
	if err != nil {
		t.Fatalf("ScoreDread: %v", err)
	}
	if res.RiskLevel != tm.SeverityHigh || res.Dread.OverallScore != 6.8 {
		t.Errorf("result = %+v", res)
	}
}

func TestNewFromEnv(t *testing.T) {
	srv := stubServer(t)
	t.Setenv(client.EnvServer, srv.URL)
	t.Setenv(client.EnvToken, "good")

	c, err := client.NewFromEnv()
	if err != nil {
		t.Fatalf("NewFromEnv: %v", err)
	}
	resp, err := c.Analyze(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if resp.AnalysisMetadata.UserID != "alice" {
		t.Errorf("token from env not used: userId=%q", resp.AnalysisMetadata.UserID)
	}

	t.Setenv(client.EnvServer, "not a url")
	if _, err := client.NewFromEnv(); err == nil {
		t.Error("expected error for invalid server URL")
	}
}
