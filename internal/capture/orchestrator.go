package capture

import (
	"fmt"
	"io"
	"log/slog"

	"pipestream/internal/logging"
	"pipestream/internal/stream"
)

// Orchestrator wraps a payload stream and governs its capture.
//
// Reads through the orchestrator fire the hooks registered with Observe.
// Reads through a probe do not: the probe exists for peeking at the head of
// the payload and is rewound before the orchestrator itself is read, so
// consumers and captures always see the payload from its first byte.
//
// The orchestrator owns the wrapped source and, once SetupCapture succeeds,
// the capturing sink. Close releases both.
//
// Logging:
//   - Logger is dependency-injected via WithLogger
//   - Scoped with component="capture"
//   - Only setup and capture completion are logged, never individual reads
type Orchestrator struct {
	base   io.ReadCloser
	probe  *stream.MarkableReader
	repl   *stream.ReplicatingReader
	events *stream.EventingReader

	state     state
	markLimit int
	released  bool
	closed    bool

	logger *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMarkLimit bounds the probe's rewind buffer. Zero means unbounded.
func WithMarkLimit(n int) Option {
	return func(o *Orchestrator) { o.markLimit = n }
}

// New wraps src in a fresh orchestrator with no capture configured.
func New(src io.ReadCloser, opts ...Option) *Orchestrator {
	o := &Orchestrator{base: src, state: fresh{}}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.Component(o.logger, "capture")
	o.events = stream.NewEventingReader(core{o})
	return o
}

// Redeem wraps src, the content of a payload captured earlier under desc.
// Only claimed payloads can be redeemed. On error the caller keeps
// ownership of src.
func Redeem(src io.ReadCloser, desc Descriptor, opts ...Option) (*Orchestrator, error) {
	if desc.Mode != Claimed {
		return nil, fmt.Errorf("%w: mode %s", ErrRedeemUnclaimed, desc.Mode)
	}
	if desc.Locator == "" {
		return nil, ErrMissingLocator
	}
	o := New(src, opts...)
	o.state = redeemed{desc: desc}
	o.logger.Debug("payload redeemed", "locator", desc.Locator)
	return o, nil
}

// IsRedeemed reports whether the orchestrator was constructed by Redeem.
func (o *Orchestrator) IsRedeemed() bool {
	_, ok := o.state.(redeemed)
	return ok
}

// Descriptor returns the capture descriptor, if one is set.
func (o *Orchestrator) Descriptor() (Descriptor, bool) {
	return descriptorOf(o.state)
}

// Observe registers lifecycle hooks for reads through the orchestrator.
func (o *Orchestrator) Observe(h stream.Hooks) {
	o.events.Observe(h)
}

// Probe exposes the head of the payload for peeking. Calling Probe again
// rewinds the same probe to the start, even if it was read to the end.
// The probe is owned by the orchestrator and must not outlive it.
func (o *Orchestrator) Probe() (io.Reader, error) {
	if o.closed {
		return nil, stream.ErrClosed
	}
	if o.repl != nil {
		return nil, ErrProbeReleased
	}
	if o.released {
		return nil, ErrProbeAfterRead
	}
	if o.probe == nil {
		o.probe = stream.NewMarkableReader(o.base, stream.WithMarkLimit(o.markLimit))
		return o.probe, nil
	}
	if err := o.probe.Rewind(); err != nil {
		return nil, err
	}
	return o.probe, nil
}

// SetupCapture associates a descriptor with the payload. A Claimed
// descriptor requires a sink, which the orchestrator then owns; an
// Unclaimed descriptor must come without one. A descriptor can be set only
// once. On error the caller keeps ownership of sink.
func (o *Orchestrator) SetupCapture(desc Descriptor, sink io.WriteCloser) error {
	if o.closed {
		return stream.ErrClosed
	}
	next, err := setup(o.state, desc, sink)
	if err != nil {
		return err
	}
	if desc.Mode == Claimed {
		if o.events.Position() > 0 || o.events.Exhausted() {
			return ErrCaptureAfterRead
		}
		if err := o.release(); err != nil {
			return err
		}
		o.repl = stream.NewReplicatingReader(o.top(), sink)
	}
	o.state = next
	o.logger.Info("capture configured", "locator", desc.Locator, "mode", desc.Mode)
	return nil
}

// Capture drains the payload through its replication into the capturing
// sink, committing the sink once the payload is exhausted.
func (o *Orchestrator) Capture() error {
	if o.closed {
		return stream.ErrClosed
	}
	if _, err := captureSink(o.state); err != nil {
		return err
	}
	desc, _ := o.Descriptor()
	n, err := io.Copy(io.Discard, o)
	if err != nil {
		return fmt.Errorf("capture %s: %w", desc.Locator, err)
	}
	total, _ := o.events.Length()
	o.logger.Info("payload captured", "locator", desc.Locator, "drained", n, "bytes", total)
	return nil
}

func (o *Orchestrator) Read(p []byte) (int, error) {
	return o.events.Read(p)
}

// Exhausted reports whether the payload has been read to the end.
func (o *Orchestrator) Exhausted() bool {
	return o.events.Exhausted()
}

// Length returns the payload length. It is known once the payload is
// exhausted, or up front when the wrapped source is seekable and nothing
// sits between it and the orchestrator.
func (o *Orchestrator) Length() (int64, error) {
	if o.events.Exhausted() {
		return o.events.Length()
	}
	if o.probe == nil && o.repl == nil {
		if s, ok := o.base.(io.Seeker); ok {
			return stream.SeekLength(s)
		}
	}
	return 0, stream.ErrLengthUnavailable
}

// Close releases the source and, if a capture was set up, the sink.
// An orchestrator closed before its payload was exhausted never commits.
func (o *Orchestrator) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	return o.events.Close()
}

// top returns the innermost reader chain head: replication, then probe,
// then the wrapped source.
func (o *Orchestrator) top() io.ReadCloser {
	switch {
	case o.repl != nil:
		return o.repl
	case o.probe != nil:
		return o.probe
	default:
		return o.base
	}
}

// release rewinds and retires the probe so the next reader starts at the
// first byte. It runs once, before the orchestrator is first read or when
// a capture is set up, whichever comes first.
func (o *Orchestrator) release() error {
	if o.released {
		return nil
	}
	if o.probe != nil {
		if err := o.probe.Rewind(); err != nil {
			return err
		}
		o.probe.StopMarking()
	}
	o.released = true
	return nil
}

// core adapts the orchestrator's reader chain to the EventingReader that
// fronts it.
type core struct{ o *Orchestrator }

func (c core) Read(p []byte) (int, error) {
	if err := c.o.release(); err != nil {
		return 0, err
	}
	return c.o.top().Read(p)
}

func (c core) Close() error {
	return c.o.top().Close()
}
