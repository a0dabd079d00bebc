package file

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"pipestream/internal/capture"
)

// Factory parameter keys.
const (
	ParamDir         = "dir"
	ParamFileMode    = "fileMode"
	ParamCompression = "compression" // "none" or "zstd"
	ParamFrameSize   = "frameSize"
)

// Default values.
const (
	DefaultFileMode = 0o644

	// DefaultFrameSize is the uncompressed frame size for seekable zstd.
	// Each frame is independently compressed, enabling random access at
	// frame granularity.
	DefaultFrameSize = 256 << 10 // 256 KB
)

var (
	ErrMissingDirParam = errors.New("missing required parameter: dir")
)

// NewFactory returns a factory function that creates file-based capture stores.
func NewFactory() capture.Factory {
	return func(params map[string]string, logger *slog.Logger) (capture.Store, error) {
		dir, ok := params[ParamDir]
		if !ok || dir == "" {
			return nil, ErrMissingDirParam
		}

		cfg := Config{
			Dir:         dir,
			FileMode:    DefaultFileMode,
			Compression: CompressionZstd,
			FrameSize:   DefaultFrameSize,
			Logger:      logger,
		}

		if v, ok := params[ParamCompression]; ok {
			switch v {
			case "zstd":
				cfg.Compression = CompressionZstd
			case "none", "":
				cfg.Compression = CompressionNone
			default:
				return nil, fmt.Errorf("invalid %s: %q (must be \"none\" or \"zstd\")", ParamCompression, v)
			}
		}

		if v, ok := params[ParamFrameSize]; ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", ParamFrameSize, err)
			}
			if n <= 0 {
				return nil, fmt.Errorf("invalid %s: must be positive", ParamFrameSize)
			}
			cfg.FrameSize = n
		}

		if v, ok := params[ParamFileMode]; ok {
			n, err := strconv.ParseUint(v, 8, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", ParamFileMode, err)
			}
			cfg.FileMode = os.FileMode(n)
		}

		return NewStore(cfg)
	}
}
