// Package apphost creates native launchers for .NET applications.
//
// The SDK ships an apphost template per runtime: a native executable that
// starts the runtime and loads an application assembly. The template holds
// a placeholder where the path to that assembly, relative to the launcher,
// is written.
package apphost

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// placeholder is the SHA-256 of "foobar", which templates carry in place of
// the application path.
const placeholder = "c3ab8ff13720e8ad9047dd39466b3c8974e592c2fa383d4a3960714caef0c4f2"

// MaxPathLength is the size of the buffer reserved for the application path.
const MaxPathLength = 1024

// ErrPlaceholderNotFound is returned for templates without a placeholder,
// including launchers that were already patched.
var ErrPlaceholderNotFound = errors.New("apphost template has no application path placeholder")

// PathTooLongError is returned when the application path does not fit the
// reserved buffer.
type PathTooLongError struct {
	Path string
}

func (e *PathTooLongError) Error() string {
	return fmt.Sprintf("application path %q is longer than %d bytes", e.Path, MaxPathLength)
}

// Patch returns a copy of template that launches the assembly at appPath.
func Patch(template []byte, appPath string) ([]byte, error) {
	if len(appPath) > MaxPathLength {
		return nil, &PathTooLongError{Path: appPath}
	}
	i := bytes.Index(template, []byte(placeholder))
	if i < 0 {
		return nil, ErrPlaceholderNotFound
	}
	if i+len(appPath) > len(template) {
		return nil, &PathTooLongError{Path: appPath}
	}
	out := bytes.Clone(template)
	n := copy(out[i:], appPath)
	// The remainder of a longer placeholder must not be read as part of the path.
	clear(out[i+n : max(i+n, i+len(placeholder))])
	return out, nil
}

// Create writes a launcher at dest, built from the template at apphost,
// that starts the assembly at entryPoint. The launcher refers to the
// assembly by its path relative to dest.
func Create(apphost, entryPoint, dest string) error {
	destAbs, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	entryAbs, err := filepath.Abs(entryPoint)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(filepath.Dir(destAbs), entryAbs)
	if err != nil {
		return fmt.Errorf("apphost: %w", err)
	}

	template, err := os.ReadFile(apphost)
	if err != nil {
		return fmt.Errorf("read apphost template: %w", err)
	}
	launcher, err := Patch(template, rel)
	if err != nil {
		return fmt.Errorf("apphost %s: %w", apphost, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destAbs), "."+filepath.Base(destAbs)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(launcher); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := os.Chmod(tmp.Name(), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := os.Rename(tmp.Name(), destAbs); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return nil
}
