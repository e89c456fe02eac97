package pathsafe

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestValidateRelativePath(t *testing.T) {
	cases := []struct {
		path    string
		wantErr bool
	}{
		{"", true},
		{"/etc/passwd", true},
		{"..", true},
		{"../escape", true},
		{"a/../../escape", true},
		{"a/b/c", false},
		{"file.txt", false},
		{"a/b/../c", false}, // cleans to a/c, no leading ".."
	}
	for _, c := range cases {
		err := ValidateRelativePath(c.path)
		if c.wantErr && err == nil {
			t.Errorf("ValidateRelativePath(%q): expected error, got nil", c.path)
		}
		if !c.wantErr && err != nil {
			t.Errorf("ValidateRelativePath(%q): unexpected error %v", c.path, err)
		}
		if c.wantErr && err != nil && !errors.Is(err, ErrUnsafePath) {
			t.Errorf("ValidateRelativePath(%q): err = %v, want ErrUnsafePath", c.path, err)
		}
	}
}

func TestResolveRepoPath_Escape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	_, err := ResolveRepoPath(root, "link")
	if !errors.Is(err, ErrPathEscape) {
		t.Fatalf("ResolveRepoPath: err = %v, want ErrPathEscape", err)
	}
}

func TestResolveRepoPath_Contained(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	real, err := ResolveRepoPath(root, "sub")
	if err != nil {
		t.Fatalf("ResolveRepoPath: %v", err)
	}
	if filepath.Base(real) != "sub" {
		t.Fatalf("ResolveRepoPath = %q", real)
	}
}

func TestResolveFilePath_NonExistentTarget(t *testing.T) {
	root := t.TempDir()

	real, err := ResolveFilePath(root, "new/file.txt")
	if err != nil {
		t.Fatalf("ResolveFilePath: %v", err)
	}
	if filepath.Base(real) != "file.txt" {
		t.Fatalf("ResolveFilePath = %q", real)
	}
}

func TestResolveFilePath_RejectsUnsafeRel(t *testing.T) {
	root := t.TempDir()
	_, err := ResolveFilePath(root, "../escape.txt")
	if !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("ResolveFilePath: err = %v, want ErrUnsafePath", err)
	}
}

func TestIsBinaryByExtension(t *testing.T) {
	cases := map[string]bool{
		"photo.PNG":  true,
		"archive.7z": true,
		"main.go":    false,
		"README.md":  false,
		"noext":      false,
	}
	for name, want := range cases {
		if got := IsBinaryByExtension(name); got != want {
			t.Errorf("IsBinaryByExtension(%q) = %v, want %v", name, got, want)
		}
	}
}
