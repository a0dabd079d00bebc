package capture

import (
	"fmt"
	"io"
)

// state is the capture state of an Orchestrator. The set of implementations
// is closed: fresh, configuredClaimed, configuredUnclaimed, redeemed.
type state interface {
	name() string
}

type fresh struct{}

type configuredClaimed struct {
	desc Descriptor
	sink io.WriteCloser
}

type configuredUnclaimed struct {
	desc Descriptor
}

// redeemed is only entered at construction, never by a transition.
type redeemed struct {
	desc Descriptor
}

func (fresh) name() string               { return "fresh" }
func (configuredClaimed) name() string   { return "configured-claimed" }
func (configuredUnclaimed) name() string { return "configured-unclaimed" }
func (redeemed) name() string            { return "redeemed" }

// setup is the only transition: fresh to one of the configured states.
func setup(s state, desc Descriptor, sink io.WriteCloser) (state, error) {
	if _, ok := s.(fresh); !ok {
		return s, ErrDescriptorAlreadySet
	}
	switch desc.Mode {
	case Unclaimed:
		if sink != nil {
			return s, ErrSinkNotAllowed
		}
		return configuredUnclaimed{desc: desc}, nil
	case Claimed:
		if sink == nil {
			return s, ErrMissingSink
		}
		return configuredClaimed{desc: desc, sink: sink}, nil
	default:
		return s, fmt.Errorf("%w: %v", ErrInvalidMode, desc.Mode)
	}
}

// captureSink returns the sink a capture would drain into, or the reason
// the state does not allow capturing.
func captureSink(s state) (io.WriteCloser, error) {
	switch st := s.(type) {
	case fresh:
		return nil, ErrNoDescriptor
	case configuredUnclaimed:
		return nil, ErrNotClaimed
	case redeemed:
		return nil, ErrMissingSink
	case configuredClaimed:
		return st.sink, nil
	default:
		panic(fmt.Sprintf("capture: unknown state %T", s))
	}
}

func descriptorOf(s state) (Descriptor, bool) {
	switch st := s.(type) {
	case configuredClaimed:
		return st.desc, true
	case configuredUnclaimed:
		return st.desc, true
	case redeemed:
		return st.desc, true
	default:
		return Descriptor{}, false
	}
}
