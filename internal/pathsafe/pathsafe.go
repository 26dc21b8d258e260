// Package pathsafe validates and canonicalizes user-supplied relative paths
// against a base directory, rejecting traversal and absolute forms before
// any filesystem operation touches them.
package pathsafe

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/serverforge/serverforge/infrastructure/errors"
)

// Join validates rawPath against base and returns the canonical absolute
// path it resolves to. rawPath is URL-decoded first (callers may receive
// it from a UI text field or a REST-shaped provider response that encodes
// separators), then rejected if it: starts with a path separator, carries
// a Windows drive-letter prefix ("C:"), carries a UNC-style prefix ("//" or
// "\\\\"), or walks (component by component) above its own root via "..".
//
// When the resolved target exists on disk, the result is the OS-canonical
// form of that path (resolving symlinks). When it does not yet exist
// (e.g. a file about to be created), Join falls back to logical
// normalization of base+rawPath and requires the result to still be
// prefixed by the canonical form of base.
func Join(base, rawPath string) (string, error) {
	decoded, err := url.QueryUnescape(rawPath)
	if err != nil {
		decoded = rawPath
	}

	if err := reject(decoded); err != nil {
		return "", err
	}

	canonicalBase, err := filepath.Abs(base)
	if err != nil {
		return "", errors.InvalidPath(rawPath, "cannot resolve base directory")
	}
	if resolved, err := filepath.EvalSymlinks(canonicalBase); err == nil {
		canonicalBase = resolved
	}

	joined := filepath.Join(canonicalBase, decoded)

	if resolved, err := filepath.EvalSymlinks(joined); err == nil {
		joined = resolved
	}

	if !withinBase(canonicalBase, joined) {
		return "", errors.InvalidPath(rawPath, "escapes base directory")
	}

	return joined, nil
}

func reject(p string) error {
	if p == "" {
		return nil
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "\\") {
		return errors.InvalidPath(p, "absolute path not allowed")
	}
	if len(p) >= 2 && p[1] == ':' {
		return errors.InvalidPath(p, "drive-letter prefix not allowed")
	}
	if strings.HasPrefix(p, "//") || strings.HasPrefix(p, "\\\\") {
		return errors.InvalidPath(p, "UNC-style prefix not allowed")
	}

	depth := 0
	for _, seg := range strings.FieldsFunc(p, isSeparator) {
		switch seg {
		case ".", "":
			continue
		case "..":
			depth--
			if depth < 0 {
				return errors.InvalidPath(p, "path traversal above root")
			}
		default:
			depth++
		}
	}
	return nil
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

func withinBase(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, "..")
}
