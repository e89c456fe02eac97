package reporegistry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func setupRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, name := range []string{"alpha", "Beta", ".hidden"} {
		if err := os.Mkdir(filepath.Join(root, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "notadir"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestDiscover(t *testing.T) {
	root := setupRoot(t)
	reg := New([]string{root})

	repos, err := reg.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(repos) != 2 {
		t.Fatalf("Discover returned %d repos, want 2: %+v", len(repos), repos)
	}
	if repos[0].DisplayName != "alpha" || repos[1].DisplayName != "Beta" {
		t.Fatalf("Discover order = %q, %q", repos[0].DisplayName, repos[1].DisplayName)
	}
}

func TestResolve(t *testing.T) {
	root := setupRoot(t)
	reg := New([]string{root})
	rootName := filepath.Base(root)

	real, err := reg.Resolve(rootName + "/alpha")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if filepath.Base(real) != "alpha" {
		t.Fatalf("Resolve = %q", real)
	}
}

func TestResolve_NotFound(t *testing.T) {
	root := setupRoot(t)
	reg := New([]string{root})

	if _, err := reg.Resolve("unknown/sub"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve: err = %v, want ErrNotFound", err)
	}

	rootName := filepath.Base(root)
	if _, err := reg.Resolve(rootName + "/does-not-exist"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve: err = %v, want ErrNotFound", err)
	}
}
