// Package contract runs the behaviour every source adapter must honour
// against a concrete adapter.
package contract

import (
	"context"
	"testing"

	"trustos/internal/verification/models"
	"trustos/internal/verification/sources"
)

// Case is one subject fed to the adapter under test.
type Case struct {
	Name         string
	Subject      models.Subject
	WantMatched  bool
	ValidateFunc func(r *models.SourceResult) error
}

// Suite validates an adapter against its cases.
type Suite struct {
	Adapter sources.Adapter
	Cases   []Case
}

// Run executes every case.
func (s *Suite) Run(t *testing.T) {
	t.Helper()
	for _, c := range s.Cases {
		t.Run(c.Name, func(t *testing.T) {
			res, err := s.Adapter.Query(context.Background(), c.Subject)
			if err != nil {
				t.Fatalf("query failed: %v", err)
			}
			if res == nil {
				t.Fatal("nil result without error")
			}
			if res.Source != s.Adapter.Name() {
				t.Errorf("expected source %s, got %s", s.Adapter.Name(), res.Source)
			}
			if res.Matched != c.WantMatched {
				t.Errorf("expected matched=%v, got %v", c.WantMatched, res.Matched)
			}
			if res.RawConfidence < 0 || res.RawConfidence > 100 {
				t.Errorf("raw confidence %f out of range [0, 100]", res.RawConfidence)
			}
			if !res.Matched && res.RawConfidence != 0 {
				t.Errorf("unmatched result carries confidence %f", res.RawConfidence)
			}
			if res.Contribution != 0 {
				t.Error("adapters must not score their own results")
			}
			if res.CheckedAt.IsZero() {
				t.Error("CheckedAt not set")
			}
			if c.ValidateFunc != nil {
				if err := c.ValidateFunc(res); err != nil {
					t.Errorf("custom validation failed: %v", err)
				}
			}
		})
	}
}

// CancelledContext checks that an adapter gives up on a cancelled context.
func CancelledContext(t *testing.T, a sources.Adapter, subject models.Subject) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Query(ctx, subject); err == nil {
		t.Errorf("%s: expected error on cancelled context", a.Name())
	}
}
