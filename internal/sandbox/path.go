// ABOUTME: Filesystem path validation against configured sandbox roots.
// ABOUTME: Canonicalizes through symlink resolution before the prefix comparison.

package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Path validation errors.
var (
	ErrEmptyPath      = errors.New("path is empty")
	ErrRelativeEscape = errors.New("path contains a relative traversal component")
	ErrOutsideRoots   = errors.New("path resolves outside the allowed roots")
	ErrCanonicalize   = errors.New("path cannot be canonicalized")
)

// ValidatePath checks that path resolves inside at least one of the allowed
// roots and returns its canonical form. Both the candidate and every root go
// through symlink resolution before the comparison; a raw-prefix check is
// insufficient because a symlink inside an allowed root can point outside it.
//
// Any ".." or "." component in the input is rejected outright, and a
// canonicalization failure (dangling symlink, unreadable parent) is a
// failure rather than a silent pass. For a path whose final component does
// not exist yet (a write target), the parent directory is canonicalized and
// the base name re-joined.
func ValidatePath(path string, allowedRoots []string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrEmptyPath
	}

	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." || part == "." {
			return "", fmt.Errorf("%w: %q", ErrRelativeEscape, path)
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCanonicalize, err)
	}

	canonical, err := canonicalize(abs)
	if err != nil {
		return "", err
	}

	for _, root := range allowedRoots {
		canonicalRoot, rootErr := canonicalizeRoot(root)
		if rootErr != nil {
			// An unresolvable root can never contain anything.
			continue
		}
		if isDescendant(canonical, canonicalRoot) {
			return canonical, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrOutsideRoots, path)
}

// canonicalize resolves symlinks in abs. When the final component does not
// exist, the parent is resolved instead and the base name re-joined so that
// not-yet-created write targets can still be validated.
func canonicalize(abs string) (string, error) {
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %v", ErrCanonicalize, err)
	}

	parent, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCanonicalize, err)
	}
	return filepath.Join(parent, filepath.Base(abs)), nil
}

// canonicalizeRoot absolutizes and symlink-resolves a configured root.
func canonicalizeRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// isDescendant reports whether path equals root or sits below it, comparing
// at path-component boundaries so /tmp/foo is not a prefix match for
// /tmp/foobar.
func isDescendant(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
