package pattern

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// fileFormat is the on-disk layout of a pattern file:
//
//	patterns:
//	  - id: ftp-cleartext
//	    name: Cleartext FTP
//	    category: information_disclosure
//	    ...
type fileFormat struct {
	Patterns []Pattern `yaml:"patterns"`
}

// Load decodes and validates patterns from YAML.
func Load(r io.Reader) ([]Pattern, error) {
	var f fileFormat
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode patterns: %w", err)
	}
	for _, p := range f.Patterns {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Patterns, nil
}

// LoadFile reads patterns from a YAML file.
func LoadFile(path string) ([]Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pattern file: %w", err)
	}
	defer f.Close()
	ps, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ps, nil
}
