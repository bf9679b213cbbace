// Package modelfile reads threat model requests from YAML or JSON files and
// writes analysis results back out in either format.
//
// YAML documents use the same camelCase keys as the JSON API:
//
//	threatModelId: checkout
//	methodology: stride
//	components:
//	  - id: web
//	    name: Storefront
//	    type: process
//	    properties:
//	      internetFacing: true
package modelfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// Format is a serialisation format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrEmpty is returned for a file with no document.
var ErrEmpty = errors.New("empty model file")

// ParseFormat accepts "json", "yaml" or "yml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown format %q (want json or yaml)", s)
}

// FormatFromPath picks the format from the file extension. Anything other
// than .json is read as YAML, which also accepts JSON documents.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Load decodes a threat model request from r.
func Load(r io.Reader, f Format) (*tm.Request, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmpty
	}

	var req tm.Request
	if f == FormatYAML {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrEmpty
			}
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		return &req, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return &req, nil
}

// LoadFile reads a threat model request from path.
func LoadFile(path string) (*tm.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model file: %w", err)
	}
	defer f.Close()

	req, err := Load(f, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return req, nil
}

// Write encodes v to w. YAML output goes through JSON so result types,
// which carry only json tags, keep their API field names.
func Write(w io.Writer, v any, f Format) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if f == FormatJSON {
		_, err = w.Write(append(data, '\n'))
		return err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}
