package pathsafe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/serverforge/serverforge/infrastructure/errors"
)

func TestJoin_ValidRelativePath(t *testing.T) {
	base := t.TempDir()
	got, err := Join(base, "mods/fabric-api.jar")
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	want := filepath.Join(base, "mods", "fabric-api.jar")
	if got != want {
		t.Errorf("Join() = %v, want %v", got, want)
	}
}

func TestJoin_RejectsTraversal(t *testing.T) {
	base := t.TempDir()
	cases := []string{
		"../escape",
		"mods/../../escape",
		"a/b/../../../escape",
		"..%2F..%2Fescape",
		"%2e%2e/escape",
	}
	for _, c := range cases {
		if _, err := Join(base, c); err == nil {
			t.Errorf("Join(%q) expected error, got nil", c)
		} else if !errors.Is(err, errors.ErrCodeInvalidPath) {
			t.Errorf("Join(%q) error = %v, want InvalidPath", c, err)
		}
	}
}

func TestJoin_RejectsAbsolute(t *testing.T) {
	base := t.TempDir()
	if _, err := Join(base, "/etc/passwd"); err == nil {
		t.Error("expected error for absolute path")
	}
}

func TestJoin_RejectsDriveLetter(t *testing.T) {
	base := t.TempDir()
	if _, err := Join(base, "C:\\Windows\\System32"); err == nil {
		t.Error("expected error for drive-letter path")
	}
}

func TestJoin_RejectsUNC(t *testing.T) {
	base := t.TempDir()
	if _, err := Join(base, "//server/share"); err == nil {
		t.Error("expected error for UNC-style path")
	}
}

func TestJoin_AllowsDotSegments(t *testing.T) {
	base := t.TempDir()
	got, err := Join(base, "./mods/./fabric-api.jar")
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	want := filepath.Join(base, "mods", "fabric-api.jar")
	if got != want {
		t.Errorf("Join() = %v, want %v", got, want)
	}
}

func TestJoin_NetTraversalThatReturnsToRoot(t *testing.T) {
	base := t.TempDir()
	// "mods/.." nets to zero depth, which is fine: it resolves to base itself.
	got, err := Join(base, "mods/..")
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if got != base {
		t.Errorf("Join() = %v, want %v", got, base)
	}
}

func TestJoin_ExistingFileIsCanonicalized(t *testing.T) {
	base := t.TempDir()
	sub := filepath.Join(base, "mods")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(sub, "a.jar")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Join(base, "mods/a.jar")
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if got != target {
		t.Errorf("Join() = %v, want %v", got, target)
	}
}
