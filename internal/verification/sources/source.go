// Package sources defines the adapter contract for external verification
// providers and the registry that orders them into primary and secondary tiers.
package sources

import (
	"context"
	"fmt"
	"strings"

	"trustos/internal/verification/models"
)

// Adapter queries one external provider. Authentication, pagination and
// payload shapes are adapter-internal. A subject the provider does not know
// is a result with Matched=false, not an error.
type Adapter interface {
	Name() string
	Query(ctx context.Context, subject models.Subject) (*models.SourceResult, error)
}

// Weight turns a source result into score points. With Factor > 0 the
// contribution is RawConfidence*Factor; otherwise it is Points on match.
// Cap > 0 bounds the contribution.
type Weight struct {
	Points float64
	Factor float64
	Cap    float64
}

// Contribution is the score a result adds; unmatched results add nothing.
func (w Weight) Contribution(r *models.SourceResult) float64 {
	if r == nil || !r.Matched {
		return 0
	}
	v := w.Points
	if w.Factor > 0 {
		v = r.RawConfidence * w.Factor
	}
	if w.Cap > 0 && v > w.Cap {
		v = w.Cap
	}
	if v < 0 {
		return 0
	}
	return v
}

// Entry is a registered adapter with its tier and weight.
type Entry struct {
	Adapter Adapter
	Tier    models.Tier
	Weight  Weight
}

// Registry keeps adapters in registration order.
type Registry struct {
	entries []Entry
	names   map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register adds an adapter; names must be unique.
func (r *Registry) Register(a Adapter, tier models.Tier, w Weight) error {
	if a == nil {
		return fmt.Errorf("adapter is required")
	}
	name := strings.ToLower(a.Name())
	if name == "" {
		return fmt.Errorf("adapter name is required")
	}
	if _, exists := r.names[name]; exists {
		return fmt.Errorf("source %s already registered", name)
	}
	if tier != models.TierPrimary && tier != models.TierSecondary {
		return fmt.Errorf("source %s: unknown tier %q", name, tier)
	}
	r.names[name] = struct{}{}
	r.entries = append(r.entries, Entry{Adapter: a, Tier: tier, Weight: w})
	return nil
}

// Tier returns the entries of one tier in registration order.
func (r *Registry) Tier(t models.Tier) []Entry {
	var out []Entry
	for _, e := range r.entries {
		if e.Tier == t {
			out = append(out, e)
		}
	}
	return out
}

// All returns every entry in registration order.
func (r *Registry) All() []Entry {
	return append([]Entry(nil), r.entries...)
}

func (r *Registry) Len() int {
	return len(r.entries)
}
