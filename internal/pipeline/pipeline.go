// Package pipeline assembles stream decorators into a receive chain.
//
// The chain is built bottom-up: decompression, then namespace rewriting,
// then a capture orchestrator on top. Callers read only from the
// orchestrator; each layer pulls from the one beneath it on demand.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"pipestream/internal/capture"
	"pipestream/internal/codec"
	"pipestream/internal/config"
	"pipestream/internal/logging"
	"pipestream/internal/stream"
	"pipestream/internal/xmlns"
)

var ErrMissingStore = errors.New("claimed capture requires a capture store")

type options struct {
	extra  *xmlns.TranslationSet
	logger *slog.Logger
}

// Option configures Build and Redeem.
type Option func(*options)

// WithTranslations adds rules beneath the configured ones. Configured rules
// take precedence, and replace these entirely when their set overrides.
func WithTranslations(set *xmlns.TranslationSet) Option {
	return func(o *options) { o.extra = set }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Build wraps src according to cfg. When capture is enabled, a claimed
// capture into store is set up under a fresh locator, available from the
// returned orchestrator's Descriptor.
//
// Build owns src: on error everything built so far, src included, is closed.
func Build(ctx context.Context, src io.ReadCloser, cfg *config.Config, store capture.Store, opts ...Option) (*capture.Orchestrator, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	logger := logging.Component(o.logger, "pipeline")

	if err := cfg.Validate(); err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	rc := src
	if f, ok, _ := cfg.Codec.DecompressFormat(); ok {
		copts, _ := cfg.Codec.Options(f)
		d, err := codec.NewDecompressor(rc, copts)
		if err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("decompress %s: %w", f, err)
		}
		rc = d
	}

	set, _ := cfg.Rewrite.TranslationSet()
	set = xmlns.Merge(set, o.extra)
	if cfg.Rewrite.Enabled() || set.Len() > 0 {
		rw, err := xmlns.NewRewriter(rc, set, append(cfg.Rewrite.Options(), xmlns.WithLogger(o.logger))...)
		if err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("rewrite: %w", err)
		}
		rc = rw
	}

	markLimit, _ := cfg.MarkLimitBytes()
	orch := capture.New(rc, capture.WithMarkLimit(markLimit), capture.WithLogger(o.logger))

	if cfg.Capture.Enabled {
		mode, _ := cfg.Capture.CaptureMode()
		desc := capture.Descriptor{Locator: capture.NewLocator(), Mode: mode}
		var sink io.WriteCloser
		if mode == capture.Claimed {
			if store == nil {
				_ = orch.Close()
				return nil, ErrMissingStore
			}
			s, err := store.Create(ctx, desc.Locator)
			if err != nil {
				_ = orch.Close()
				return nil, fmt.Errorf("create capture %s: %w", desc.Locator, err)
			}
			sink = s
		}
		if err := orch.SetupCapture(desc, sink); err != nil {
			if sink != nil {
				_ = sink.Close()
			}
			_ = orch.Close()
			return nil, err
		}
	}

	observe(orch, logger)
	return orch, nil
}

// Redeem opens the payload captured under locator.
func Redeem(ctx context.Context, store capture.Store, locator string, opts ...Option) (*capture.Orchestrator, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	logger := logging.Component(o.logger, "pipeline")

	rc, err := store.Open(ctx, locator)
	if err != nil {
		return nil, err
	}
	orch, err := capture.Redeem(rc, capture.Descriptor{Locator: locator, Mode: capture.Claimed}, capture.WithLogger(o.logger))
	if err != nil {
		_ = rc.Close()
		return nil, err
	}
	observe(orch, logger)
	return orch, nil
}

func observe(orch *capture.Orchestrator, logger *slog.Logger) {
	orch.Observe(stream.Hooks{
		AfterLastRead: func(total int64) {
			attrs := []any{"bytes", total}
			if desc, ok := orch.Descriptor(); ok {
				attrs = append(attrs, "locator", desc.Locator, "mode", desc.Mode.String())
			}
			logger.Info("payload consumed", attrs...)
		},
	})
}
