// Package capture copies message payloads to durable storage for audit and
// later redemption.
//
// An Orchestrator wraps a payload stream and decides whether and how it is
// captured. A Claimed capture mirrors every byte read through the
// orchestrator into a Sink obtained from a Store and commits the sink once
// the payload has been fully consumed; the live payload can later be
// replaced by a reference to the capture. An Unclaimed capture only records
// a descriptor: the copy is taken elsewhere and the live payload stays intact.
// A redeemed orchestrator represents a payload that was claimed earlier and
// is now being read back from its store.
//
// Stores are selected by type name through a Registry of factories, the same
// way the rest of the system builds components from configuration.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrDescriptorAlreadySet = errors.New("capture descriptor already set")
	ErrNoDescriptor         = errors.New("capture descriptor not set")
	ErrNotClaimed           = errors.New("capture mode is not claimed")
	ErrSinkNotAllowed       = errors.New("unclaimed capture does not take a capturing sink")
	ErrMissingSink          = errors.New("missing argument: capturing sink")
	ErrRedeemUnclaimed      = errors.New("only claimed payloads can be redeemed")
	ErrInvalidMode          = errors.New("invalid capture mode")
	ErrCaptureAfterRead     = errors.New("capture configured after the payload was read")
	ErrProbeAfterRead       = errors.New("probe requested after the payload was read")
	ErrProbeReleased        = errors.New("probe released by capture setup")
	ErrNotFound             = errors.New("capture not found")
	ErrAlreadyCommitted     = errors.New("capture already committed")
	ErrUnknownStoreType     = errors.New("unknown capture store type")
	ErrMissingLocator       = errors.New("missing capture locator")
)

// Mode selects how a payload is captured.
type Mode int

const (
	// Unclaimed captures a copy while the live payload stays intact.
	Unclaimed Mode = iota
	// Claimed captures the payload so it can be replaced by a reference
	// and redeemed later.
	Claimed
)

func (m Mode) String() string {
	switch m {
	case Unclaimed:
		return "unclaimed"
	case Claimed:
		return "claimed"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "claimed" or "unclaimed" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "claimed":
		return Claimed, nil
	case "unclaimed":
		return Unclaimed, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Descriptor identifies where a payload is, or will be, stored.
type Descriptor struct {
	// Locator is opaque to everything but the Store that issued it.
	Locator string
	Mode    Mode
}

// NewLocator returns a fresh random locator.
func NewLocator() string {
	return uuid.NewString()
}

// Sink receives a captured payload. Data written to a sink becomes
// visible in its store only after Commit. Closing an uncommitted sink
// discards what was written.
type Sink interface {
	io.WriteCloser
	Commit() error
}

// Store persists captured payloads.
type Store interface {
	// Create returns a sink for a new capture stored under locator.
	Create(ctx context.Context, locator string) (Sink, error)

	// Open returns the committed payload stored under locator, or
	// ErrNotFound.
	Open(ctx context.Context, locator string) (io.ReadCloser, error)

	// Delete removes the payload stored under locator, or returns ErrNotFound.
	Delete(ctx context.Context, locator string) error
}

// Factory creates a Store from configuration parameters.
// Factories validate required params, apply defaults, and return a fully
// constructed store or a descriptive error.
type Factory func(params map[string]string, logger *slog.Logger) (Store, error)

// Registry maps store type names (e.g. "file", "s3") to factories.
type Registry map[string]Factory

// Open creates a store of the given type.
func (r Registry) Open(typ string, params map[string]string, logger *slog.Logger) (Store, error) {
	f, ok := r[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownStoreType, typ, strings.Join(r.Types(), ", "))
	}
	return f(params, logger)
}

// Types returns the registered type names in sorted order.
func (r Registry) Types() []string {
	types := make([]string, 0, len(r))
	for t := range r {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
