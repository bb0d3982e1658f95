package catalog

import (
	"errors"
	"fmt"

	"github.com/ligustah/gridfetch/pkg/gddp"
)

// DefaultReferenceVariable is the variable whose run identifies a
// (model, scenario) pair. Models without it are not resolvable.
const DefaultReferenceVariable = "tasmax"

// ErrNotFound is returned when no manifest row matches a lookup.
var ErrNotFound = errors.New("catalog: entry not found")

// LookupError reports a (model, scenario) pair missing from the manifest.
type LookupError struct {
	Model     string
	Scenario  string
	Reference string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("catalog: no %s entry for model %s scenario %s", e.Reference, e.Model, e.Scenario)
}

func (e *LookupError) Unwrap() error { return ErrNotFound }

type pairKey struct {
	model    string
	scenario string
}

// Resolver looks up run identities in a manifest.
type Resolver struct {
	reference string
	index     map[pairKey]Entry
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithReferenceVariable sets the variable rows must carry to match.
func WithReferenceVariable(v string) Option {
	return func(r *Resolver) {
		r.reference = v
	}
}

// NewResolver indexes m. The first matching row in manifest order wins.
func NewResolver(m *Manifest, opts ...Option) *Resolver {
	r := &Resolver{reference: DefaultReferenceVariable}
	for _, opt := range opts {
		opt(r)
	}

	r.index = make(map[pairKey]Entry)
	for _, e := range m.entries {
		if e.Variable != r.reference {
			continue
		}
		k := pairKey{e.Model, e.Scenario}
		if _, ok := r.index[k]; !ok {
			r.index[k] = e
		}
	}
	return r
}

// Resolve returns the ensemble member and grid code for a pair.
func (r *Resolver) Resolve(model, scenario string) (gddp.Member, error) {
	e, ok := r.index[pairKey{model, scenario}]
	if !ok {
		return gddp.Member{}, &LookupError{Model: model, Scenario: scenario, Reference: r.reference}
	}
	return e.Member(), nil
}

// Pairs returns the number of resolvable (model, scenario) pairs.
func (r *Resolver) Pairs() int {
	return len(r.index)
}
