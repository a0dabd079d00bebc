// Package home manages the pipestream home directory layout.
//
// The home directory owns all persistent local state: the config file,
// captured payloads of the file store, and spool files of the cloud stores.
//
// Layout:
//
//	<root>/
//	  config.json                      (versioned config envelope)
//	  instance_id                      (persistent instance identity)
//	  captures/
//	    <locator>.capture              (file store payloads)
//	    <locator>.meta
//	  spool/                           (staging for remote uploads)
package home

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Dir represents a pipestream home directory.
type Dir struct {
	root string
}

// New creates a Dir with an explicit root path.
func New(root string) Dir {
	return Dir{root: root}
}

// Default returns a Dir using the platform-appropriate default location:
//   - Linux:   ~/.config/pipestream
//   - macOS:   ~/Library/Application Support/pipestream
//   - Windows: %APPDATA%/pipestream
func Default() (Dir, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return Dir{}, fmt.Errorf("determine config directory: %w", err)
	}
	return Dir{root: filepath.Join(base, "pipestream")}, nil
}

// Root returns the home directory path.
func (d Dir) Root() string {
	return d.root
}

// ConfigPath returns the path to the config file.
func (d Dir) ConfigPath() string {
	return filepath.Join(d.root, "config.json")
}

// CapturesDir returns the directory of the file capture store.
func (d Dir) CapturesDir() string {
	return filepath.Join(d.root, "captures")
}

// SpoolDir returns the directory remote stores stage uploads in.
func (d Dir) SpoolDir() string {
	return filepath.Join(d.root, "spool")
}

// EnsureExists creates the home directory (and parents) if it doesn't exist.
func (d Dir) EnsureExists() error {
	if err := os.MkdirAll(d.root, 0o750); err != nil {
		return fmt.Errorf("create home directory %s: %w", d.root, err)
	}
	return nil
}

// InstanceID reads the persistent instance identity from <root>/instance_id.
// If the file doesn't exist, a new UUIDv7 is generated and written.
func (d Dir) InstanceID() (string, error) {
	return d.readOrCreate("instance_id", func() string {
		return uuid.Must(uuid.NewV7()).String()
	})
}

// readOrCreate reads a single-line value from <root>/<filename>.
// If the file doesn't exist, generate() provides the default which is persisted.
func (d Dir) readOrCreate(filename string, generate func() string) (string, error) {
	p := filepath.Join(d.root, filename)
	data, err := os.ReadFile(p) //nolint:gosec // G304: path is constructed from trusted home dir + constant filename
	if err == nil {
		if v := strings.TrimSpace(string(data)); v != "" {
			return v, nil
		}
	}
	v := generate()
	if err := os.WriteFile(p, []byte(v+"\n"), 0o640); err != nil { //nolint:gosec // G306: identity file is not secret
		return "", fmt.Errorf("write %s: %w", filename, err)
	}
	return v, nil
}
