package logging

import (
	"context"
	"log/slog"
	"sync"
)

// ComponentKey is the attribute that names the component emitting a record.
const ComponentKey = "component"

// levels is shared by a ComponentFilterHandler and every handler derived
// from it, so level changes apply to loggers already handed out.
type levels struct {
	mu        sync.RWMutex
	def       slog.Level
	overrides map[string]slog.Level
}

func (l *levels) get(component string) slog.Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if lvl, ok := l.overrides[component]; ok {
		return lvl
	}
	return l.def
}

// lowest is the most verbose level any component currently accepts.
func (l *levels) lowest() slog.Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lowest := l.def
	for _, lvl := range l.overrides {
		lowest = min(lowest, lvl)
	}
	return lowest
}

// ComponentFilterHandler drops records below a per-component level.
//
// The component is taken from the "component" attribute, either attached
// with Logger.With or passed on the record itself. Records without one are
// filtered at the default level. The wrapped handler should accept every
// level; filtering is done here.
type ComponentFilterHandler struct {
	next      slog.Handler
	levels    *levels
	component string
}

// NewComponentFilterHandler wraps next with defaultLevel for components that
// have no level of their own.
func NewComponentFilterHandler(next slog.Handler, defaultLevel slog.Level) *ComponentFilterHandler {
	return &ComponentFilterHandler{
		next:   next,
		levels: &levels{def: defaultLevel, overrides: make(map[string]slog.Level)},
	}
}

// SetLevel sets the minimum level for one component.
func (h *ComponentFilterHandler) SetLevel(component string, level slog.Level) {
	h.levels.mu.Lock()
	defer h.levels.mu.Unlock()
	h.levels.overrides[component] = level
}

// ClearLevel returns component to the default level.
func (h *ComponentFilterHandler) ClearLevel(component string) {
	h.levels.mu.Lock()
	defer h.levels.mu.Unlock()
	delete(h.levels.overrides, component)
}

// Level returns the effective level for component.
func (h *ComponentFilterHandler) Level(component string) slog.Level {
	return h.levels.get(component)
}

func (h *ComponentFilterHandler) DefaultLevel() slog.Level {
	h.levels.mu.RLock()
	defer h.levels.mu.RUnlock()
	return h.levels.def
}

// Enabled is exact when the component is already known. Otherwise it admits
// any level some component accepts and leaves the decision to Handle.
func (h *ComponentFilterHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.component != "" {
		return level >= h.levels.get(h.component)
	}
	return level >= h.levels.lowest()
}

func (h *ComponentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	component := h.component
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == ComponentKey {
			component = a.Value.String()
			return false
		}
		return true
	})
	if r.Level < h.levels.get(component) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *ComponentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.next = h.next.WithAttrs(attrs)
	for _, a := range attrs {
		if a.Key == ComponentKey {
			c.component = a.Value.String()
		}
	}
	return &c
}

func (h *ComponentFilterHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.next = h.next.WithGroup(name)
	return &c
}
