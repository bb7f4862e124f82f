// Package duplicate flags job postings that closely resemble recently
// submitted ones.
package duplicate

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"trustos/internal/verification/models"
	pstrings "trustos/pkg/platform/strings"
)

const (
	DefaultCapacity  = 1000
	DefaultThreshold = 0.8
)

// Weights of each similarity component. They sum to 1.
const (
	titleWeight        = 0.3
	descriptionWeight  = 0.3
	companyWeight      = 0.2
	requirementsWeight = 0.2
)

// candidate is a posting reduced to what comparison needs.
type candidate struct {
	id           string
	title        string
	company      string
	postedDate   time.Time
	titleSet     map[string]struct{}
	descSet      map[string]struct{}
	companyKey   string
	requirements map[string]struct{}
}

// Detector keeps a bounded FIFO window of recent postings and compares each
// new posting against it. The window is in-process; it is not shared across
// instances.
type Detector struct {
	mu        sync.Mutex
	ring      []candidate
	next      int
	full      bool
	threshold float64
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Detector)

func WithCapacity(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.ring = make([]candidate, n)
		}
	}
}

func WithThreshold(t float64) Option {
	return func(d *Detector) {
		if t > 0 && t <= 1 {
			d.threshold = t
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

func New(opts ...Option) *Detector {
	d := &Detector{
		ring:      make([]candidate, DefaultCapacity),
		threshold: DefaultThreshold,
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Check compares posting against the window and then remembers it, whether or
// not it matched. A posting without an ID is assigned one. A posting checked
// again under the same ID is never its own duplicate; it replaces its earlier
// copy in place.
func (d *Detector) Check(posting models.JobPosting) models.DuplicateCheckResult {
	c := d.prepare(posting)

	d.mu.Lock()
	defer d.mu.Unlock()

	matches := make([]models.DuplicateMatch, 0)
	self := -1
	for i := range d.size() {
		stored := &d.ring[i]
		if stored.id == c.id {
			self = i
			continue
		}
		sim := similarity(&c, stored)
		if sim >= d.threshold {
			matches = append(matches, models.DuplicateMatch{
				ID:         stored.id,
				Title:      stored.title,
				Company:    stored.company,
				PostedDate: stored.postedDate,
				Similarity: sim,
			})
		}
	}
	slices.SortStableFunc(matches, func(a, b models.DuplicateMatch) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return 0
	})

	if self >= 0 {
		d.ring[self] = c
	} else {
		d.store(c)
	}

	result := models.DuplicateCheckResult{Matches: matches}
	if len(matches) > 0 {
		result.IsDuplicate = true
		result.Similarity = matches[0].Similarity
		d.logger.Info("duplicate posting detected",
			"posting_id", c.id,
			"match_id", matches[0].ID,
			"similarity", matches[0].Similarity,
		)
	}
	return result
}

// Len is the number of postings currently remembered.
func (d *Detector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size()
}

func (d *Detector) size() int {
	if d.full {
		return len(d.ring)
	}
	return d.next
}

// store overwrites the oldest slot once the ring is full. Caller holds d.mu.
func (d *Detector) store(c candidate) {
	d.ring[d.next] = c
	d.next++
	if d.next == len(d.ring) {
		d.next = 0
		d.full = true
	}
}

func (d *Detector) prepare(p models.JobPosting) candidate {
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	posted := p.PostedDate
	if posted.IsZero() {
		posted = d.now().UTC()
	}
	reqs := make(map[string]struct{}, len(p.Requirements))
	for _, r := range pstrings.DedupeAndTrimLower(p.Requirements) {
		reqs[r] = struct{}{}
	}
	return candidate{
		id:           id,
		title:        p.Title,
		company:      p.Company.Name,
		postedDate:   posted,
		titleSet:     pstrings.TokenSet(p.Title),
		descSet:      pstrings.TokenSet(p.Description),
		companyKey:   pstrings.NormalizeText(p.Company.Name),
		requirements: reqs,
	}
}

func similarity(a, b *candidate) float64 {
	company := 0.0
	if a.companyKey != "" && a.companyKey == b.companyKey {
		company = 1
	}
	return titleWeight*jaccard(a.titleSet, b.titleSet) +
		descriptionWeight*jaccard(a.descSet, b.descSet) +
		companyWeight*company +
		requirementsWeight*jaccard(a.requirements, b.requirements)
}

// jaccard is |a∩b| / |a∪b|, defined as 0 when both sets are empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for k := range small {
		if _, ok := large[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
