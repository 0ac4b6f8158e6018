package versioning

import (
	"fmt"
	"net/http"
)

// Resolution is the outcome of resolving one request.
type Resolution struct {
	Descriptor Descriptor
	// Source is the signal source that decided the version, or SourceDefault.
	Source Source
	// Signals holds every signal found, in precedence order.
	Signals []Signal
	// Discrepancy reports that a lower-precedence signal named another version.
	Discrepancy bool
}

// Resolver picks a request's version. The first present signal in extractor
// order wins; disagreeing signals are recorded, not rejected. Resolver holds
// no mutable state.
type Resolver struct {
	set        *Set
	extractors []Extractor
}

// NewResolver creates a resolver over set. With no extractors the
// DefaultExtractors are used.
func NewResolver(set *Set, extractors ...Extractor) *Resolver {
	if set == nil {
		panic("version set cannot be nil")
	}
	if len(extractors) == 0 {
		extractors = DefaultExtractors()
	}
	return &Resolver{set: set, extractors: extractors}
}

// Set returns the supported version set.
func (r *Resolver) Set() *Set { return r.set }

// Signals returns every signal present on req in precedence order.
func (r *Resolver) Signals(req *http.Request) []Signal {
	var signals []Signal
	for _, ex := range r.extractors {
		if raw, ok := ex.Extract(req); ok {
			signals = append(signals, Signal{Source: ex.Source, Raw: raw})
		}
	}
	return signals
}

// Resolve computes the version for req. A request without signals gets the
// default version. A winning signal that is malformed or unsupported fails
// with an error matching ErrUnsupportedVersion.
func (r *Resolver) Resolve(req *http.Request) (Resolution, error) {
	signals := r.Signals(req)
	if len(signals) == 0 {
		return Resolution{Descriptor: r.set.Default(), Source: SourceDefault}, nil
	}

	winner := signals[0]
	v, err := Parse(winner.Raw)
	if err != nil {
		return Resolution{Source: winner.Source, Signals: signals},
			fmt.Errorf("%w: %q from %s: %v", ErrUnsupportedVersion, winner.Raw, winner.Source, err)
	}
	d, ok := r.set.Lookup(v)
	if !ok {
		return Resolution{Source: winner.Source, Signals: signals},
			fmt.Errorf("%w: %s from %s", ErrUnsupportedVersion, v, winner.Source)
	}

	res := Resolution{Descriptor: d, Source: winner.Source, Signals: signals}
	for _, s := range signals[1:] {
		other, err := Parse(s.Raw)
		if err != nil || other != v {
			res.Discrepancy = true
			break
		}
	}
	return res, nil
}
