package cli

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dwizi/region-relay/internal/catalog"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRoot(slog.New(slog.NewTextHandler(io.Discard, nil)))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCatalogImportAndShow(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "relay.sqlite")
	seed := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(seed, []byte(`regions:
  - code: CENTRAL
    aliases: [capital]
  - code: SOUTH
tags: [A, B]
`), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	out, err := runRoot(t, "catalog", "import", seed, "--db", dbPath)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !strings.Contains(out, "imported 2 regions and 2 tags") {
		t.Fatalf("unexpected import output: %q", out)
	}

	out, err = runRoot(t, "catalog", "show", "--db", dbPath)
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	file, err := catalog.Parse([]byte(out))
	if err != nil {
		t.Fatalf("show output is not a catalog: %v\n%s", err, out)
	}
	if len(file.Regions) != 2 || file.Regions[0].Code != "CENTRAL" || file.Regions[0].Aliases[0] != "capital" {
		t.Fatalf("unexpected catalog: %+v", file)
	}
}

func TestCatalogImportRejectsMissingFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "relay.sqlite")
	if _, err := runRoot(t, "catalog", "import", filepath.Join(t.TempDir(), "missing.yaml"), "--db", dbPath); err == nil {
		t.Fatal("expected missing file error")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runRoot(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if strings.TrimSpace(out) != version {
		t.Fatalf("unexpected version output %q", out)
	}
}
