package modelfile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

const yamlModel = `
threatModelId: checkout
methodology: stride
components:
  - id: web
    name: Storefront
    type: process
    properties:
      internetFacing: true
      protocols: [https]
  - id: orders
    name: Orders DB
    type: data_store
    properties:
      sensitive: true
dataFlows:
  - id: f1
    name: order writes
    sourceId: web
    targetId: orders
    sensitive: true
options:
  enableDreadScoring: true
`

func TestLoad_yaml(t *testing.T) {
	req, err := Load(strings.NewReader(yamlModel), FormatYAML)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if req.ThreatModelID != "checkout" || req.Methodology != tm.MethodologySTRIDE {
		t.Errorf("id=%q methodology=%q", req.ThreatModelID, req.Methodology)
	}
	if len(req.Components) != 2 || req.Components[1].Type != tm.ComponentDataStore {
		t.Fatalf("components = %+v", req.Components)
	}
	if !req.Components[0].Properties.InternetFacing || req.Components[0].Properties.Protocols[0] != "https" {
		t.Errorf("properties = %+v", req.Components[0].Properties)
	}
	if len(req.DataFlows) != 1 || req.DataFlows[0].TargetID != "orders" {
		t.Errorf("flows = %+v", req.DataFlows)
	}
	if d := req.Options.EnableDreadScoring; d == nil || !*d {
		t.Errorf("options = %+v", req.Options)
	}
}

func TestLoad_json(t *testing.T) {
	in := `{"threatModelId":"x","methodology":"pasta","components":[{"id":"a","name":"A","type":"process"}]}`
	req, err := Load(strings.NewReader(in), FormatJSON)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if req.Methodology != tm.MethodologyPASTA || len(req.Components) != 1 {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestLoad_errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		f    Format
	}{
		{"empty", "   \n", FormatYAML},
		{"bad yaml", "components: [\n", FormatYAML},
		{"unknown field", `{"threatModelId":"x","bogus":1}`, FormatJSON},
		{"wrong type", "components: 3\n", FormatYAML},
		{"unknown yaml key", "threatModelId: x\nbogus: 1\n", FormatYAML},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(tc.in), tc.f); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := Load(strings.NewReader(""), FormatJSON); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.yml")
	if err := os.WriteFile(path, []byte(yamlModel), 0o600); err != nil {
		t.Fatal(err)
	}
	req, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if req.ThreatModelID != "checkout" {
		t.Errorf("id = %q", req.ThreatModelID)
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFormatFromPath(t *testing.T) {
	cases := map[string]Format{
		"m.json":  FormatJSON,
		"M.JSON":  FormatJSON,
		"m.yaml":  FormatYAML,
		"m.yml":   FormatYAML,
		"m":       FormatYAML,
		"dir/m.x": FormatYAML,
	}
	for path, want := range cases {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"json", "YAML", "yml"} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("ParseFormat(%q): %v", s, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestWrite(t *testing.T) {
	v := map[string]any{"threatModelId": "checkout", "confidence": 0.8}

	var js bytes.Buffer
	if err := Write(&js, v, FormatJSON); err != nil {
		t.Fatalf("Write json: %v", err)
	}
	if !strings.Contains(js.String(), `"threatModelId": "checkout"`) {
		t.Errorf("json output:\n%s", js.String())
	}

	var ym bytes.Buffer
	if err := Write(&ym, v, FormatYAML); err != nil {
		t.Fatalf("Write yaml: %v", err)
	}
	if !strings.Contains(ym.String(), "threatModelId: checkout") {
		t.Errorf("yaml output:\n%s", ym.String())
	}
}
