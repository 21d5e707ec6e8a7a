package engine

import (
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/cayyus/engineerverse/internal/taxonomy"
)

// Float64Source yields uniform values in [0, 1). *rand.Rand satisfies it.
type Float64Source interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

func newSeededSource(seed int64) Float64Source {
	return rand.New(rand.NewPCG(uint64(seed), 0))
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithRand replaces the ambient random source.
func WithRand(src Float64Source) SamplerOption {
	return func(s *Sampler) { s.ambient = src }
}

// WithSeededRand replaces the factory used for seeded first draws.
func WithSeededRand(fn func(seed int64) Float64Source) SamplerOption {
	return func(s *Sampler) { s.seeded = fn }
}

// WithFactors sets the decay and recovery factors applied after each round.
func WithFactors(decay, recovery float64) SamplerOption {
	return func(s *Sampler) {
		s.decay = decay
		s.recovery = recovery
	}
}

// Sampler performs weighted random selection over a term set it owns.
// Weight mutation and index rebuilds are serialised by mu.
type Sampler struct {
	mu         sync.Mutex
	terms      taxonomy.TermSet
	cumulative []float64
	dirty      bool

	ambient  Float64Source
	seeded   func(seed int64) Float64Source
	decay    float64
	recovery float64
}

// NewSampler takes a copy of terms.
func NewSampler(terms taxonomy.TermSet, opts ...SamplerOption) *Sampler {
	s := &Sampler{
		terms:    terms.Clone(),
		dirty:    true,
		ambient:  globalSource{},
		seeded:   newSeededSource,
		decay:    DefaultDecayFactor,
		recovery: DefaultRecoveryFactor,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Len returns the number of terms.
func (s *Sampler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.terms)
}

// Snapshot returns a copy of the current weighted set.
func (s *Sampler) Snapshot() taxonomy.TermSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terms.Clone()
}

// SelectOne draws one term with probability proportional to its weight.
// It reports false when the set is empty or carries no weight.
func (s *Sampler) SelectOne() (taxonomy.Term, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dirty {
		s.cumulative = buildCumulative(s.terms, s.cumulative)
		s.dirty = false
	}
	idx, ok := pick(s.cumulative, s.ambient)
	if !ok {
		return taxonomy.Term{}, false
	}
	return s.terms[idx], true
}

// SelectMany draws up to count distinct terms without replacement using the
// ambient source, then adjusts the weights of the owned set.
func (s *Sampler) SelectMany(count int) []taxonomy.Term {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectMany(count, s.ambient)
}

// SelectManySeeded is SelectMany with the first draw taken from a source
// seeded with seed. Draws after the first removal use the ambient source, so
// the sequence is reproducible only as far as the ambient source is.
func (s *Sampler) SelectManySeeded(count int, seed int64) []taxonomy.Term {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectMany(count, s.seeded(seed))
}

func (s *Sampler) selectMany(count int, first Float64Source) []taxonomy.Term {
	if count > len(s.terms) {
		count = len(s.terms)
	}
	if count <= 0 {
		return nil
	}

	remaining := s.terms.Clone()
	selected := make([]taxonomy.Term, 0, count)
	var cumulative []float64
	src := first
	for len(selected) < count {
		cumulative = buildCumulative(remaining, cumulative)
		idx, ok := pick(cumulative, src)
		if !ok {
			break
		}
		selected = append(selected, remaining[idx])
		remaining = append(remaining[:idx], remaining[idx+1:]...)
		src = s.ambient
	}

	Adjust(s.terms, selected, s.decay, s.recovery)
	s.dirty = true
	return selected
}

// buildCumulative writes the running weight sums of terms into buf.
func buildCumulative(terms taxonomy.TermSet, buf []float64) []float64 {
	buf = buf[:0]
	sum := 0.0
	for _, t := range terms {
		sum += t.Weight
		buf = append(buf, sum)
	}
	return buf
}

// pick maps a uniform draw onto the cumulative index: the first entry >= the
// drawn value wins, clamped to the last index.
func pick(cumulative []float64, src Float64Source) (int, bool) {
	if len(cumulative) == 0 {
		return 0, false
	}
	total := cumulative[len(cumulative)-1]
	if total <= 0 {
		return 0, false
	}
	target := src.Float64() * total
	idx := sort.SearchFloat64s(cumulative, target)
	if idx >= len(cumulative) {
		idx = len(cumulative) - 1
	}
	return idx, true
}
