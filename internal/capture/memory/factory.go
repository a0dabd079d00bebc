package memory

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"pipestream/internal/capture"
)

// Factory parameter keys.
const (
	ParamMaxBytes = "maxBytes"
)

var ErrTooLarge = errors.New("capture too large for memory store")

// NewFactory returns a factory function that creates memory capture stores.
func NewFactory() capture.Factory {
	return func(params map[string]string, logger *slog.Logger) (capture.Store, error) {
		var maxBytes int64
		if v, ok := params[ParamMaxBytes]; ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", ParamMaxBytes, err)
			}
			if n <= 0 {
				return nil, fmt.Errorf("invalid %s: must be positive", ParamMaxBytes)
			}
			maxBytes = n
		}
		return NewStore(maxBytes, logger), nil
	}
}
