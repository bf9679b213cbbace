package main

import (
	"io/fs"
	"testing"

	"github.com/jmerrifield20/threatlens/migrations"
)

func TestVersionFromFile(t *testing.T) {
	tests := []struct {
		name    string
		want    int64
		wantErr bool
	}{
		{"001_audit_ledger.sql", 1, false},
		{"012_add_index.sql", 12, false},
		{"audit.sql", 0, true},
		{"x1_bad.sql", 0, true},
	}
	for _, tt := range tests {
		got, err := versionFromFile(tt.name)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("versionFromFile(%q) = %d, %v", tt.name, got, err)
		}
	}
}

func TestEmbeddedMigrationsAreVersioned(t *testing.T) {
	files, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil || len(files) == 0 {
		t.Fatalf("no embedded migrations: %v", err)
	}
	seen := map[int64]string{}
	for _, f := range files {
		v, err := versionFromFile(f)
		if err != nil {
			t.Errorf("%s: %v", f, err)
			continue
		}
		if prev, dup := seen[v]; dup {
			t.Errorf("version %d used by %s and %s", v, prev, f)
		}
		seen[v] = f
	}
}
