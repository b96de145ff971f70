// Package workspace resolves file-path tool arguments against an agent's
// workspace root, rejecting anything that would read or write outside it
// (§4.4).
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Sandbox resolves paths relative to a single workspace root.
type Sandbox struct {
	root string
}

// New creates a Sandbox rooted at root, creating the directory on first
// use with permissions that isolate it from other agents.
func New(root string) (*Sandbox, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("workspace: create root: %w", err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace: canonicalize root: %w", err)
	}
	return &Sandbox{root: canonical}, nil
}

// Root returns the sandbox's canonical root path.
func (s *Sandbox) Root() string { return s.root }

// Resolve validates and canonicalizes path against the sandbox root for a
// write-type operation. Every symlink in an existing path, the final
// component included, is resolved before the root check, so a link whose
// target escapes the root is rejected; a final-component link whose target
// does not exist is returned as the link's own path.
func (s *Sandbox) Resolve(path string) (string, error) {
	return s.resolve(path, false)
}

// ResolveForRead validates and canonicalizes path for a read operation,
// resolving symlinks the same way as Resolve. A final-component symlink left
// unresolved by canonicalization (its target does not exist) is rejected.
func (s *Sandbox) ResolveForRead(path string) (string, error) {
	return s.resolve(path, true)
}

func (s *Sandbox) resolve(path string, followSymlink bool) (string, error) {
	if err := validateRawPath(path); err != nil {
		return "", err
	}

	var joined string
	if filepath.IsAbs(path) {
		joined = filepath.Clean(path)
	} else {
		joined = filepath.Join(s.root, path)
	}

	canonical, err := canonicalize(joined)
	if err != nil {
		return "", fmt.Errorf("workspace: canonicalize: %w", err)
	}
	if !s.withinRoot(canonical) {
		return "", fmt.Errorf("workspace: path is outside workspace: %s", path)
	}

	if followSymlink {
		if info, err := os.Lstat(canonical); err == nil && info.Mode()&os.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(canonical)
			if err != nil {
				return "", fmt.Errorf("workspace: resolve symlink: %w", err)
			}
			if !s.withinRoot(target) {
				return "", fmt.Errorf("workspace: symlink target is outside workspace: %s", path)
			}
			return target, nil
		}
	}

	return canonical, nil
}

// withinRoot reports whether candidate is the root itself or a descendant
// of it.
func (s *Sandbox) withinRoot(candidate string) bool {
	if candidate == s.root {
		return true
	}
	return strings.HasPrefix(candidate, s.root+string(filepath.Separator))
}

// canonicalize resolves ".." and "." segments and, for any existing
// ancestor, symlinks — without requiring the final component to exist
// (needed for write_file targets that don't exist yet).
func canonicalize(path string) (string, error) {
	cleaned := filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(cleaned); err == nil {
		return resolved, nil
	}
	// Target doesn't exist (e.g. a new file). Resolve the nearest existing
	// ancestor and rejoin the remaining, non-existent suffix.
	dir, base := filepath.Split(cleaned)
	dir = filepath.Clean(dir)
	resolvedDir, err := resolveNearestExisting(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, base), nil
}

func resolveNearestExisting(dir string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return resolved, nil
	}
	parent := filepath.Dir(dir)
	if parent == dir {
		return "", errors.New("workspace: no existing ancestor directory")
	}
	resolvedParent, err := resolveNearestExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(dir)), nil
}

// validateRawPath rejects null bytes and non-UTF-8 input before any
// filesystem interaction (§4.4 edge cases).
func validateRawPath(path string) error {
	if !utf8.ValidString(path) {
		return errors.New("workspace: path is not valid UTF-8")
	}
	if strings.ContainsRune(path, 0) {
		return errors.New("workspace: path contains a null byte")
	}
	if path == "" {
		return errors.New("workspace: empty path")
	}
	return nil
}
