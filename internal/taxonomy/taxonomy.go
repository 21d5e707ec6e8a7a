// Package taxonomy holds the search-term catalogue the feed rotates through:
// terms, their categories, and the fixed lookup table used to assign the
// initial weights.
package taxonomy

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
)

var (
	ErrEmptyTermName = errors.New("term name is empty")
	ErrDuplicateTerm = errors.New("duplicate term name")
)

// Term is a weighted search-query unit.
type Term struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Weight   float64 `json:"weight"`
}

// TermSet is an ordered sequence of terms with unique names.
type TermSet []Term

// NewTermSet validates terms and returns them as an owned TermSet.
func NewTermSet(terms []Term) (TermSet, error) {
	seen := make(map[string]bool, len(terms))
	out := make(TermSet, 0, len(terms))
	for _, t := range terms {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, ErrEmptyTermName
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTerm, name)
		}
		seen[name] = true
		t.Name = name
		out = append(out, t)
	}
	return out, nil
}

// Clone returns a copy that does not alias s.
func (s TermSet) Clone() TermSet {
	if s == nil {
		return nil
	}
	out := make(TermSet, len(s))
	copy(out, s)
	return out
}

// TotalWeight sums every term's weight.
func (s TermSet) TotalWeight() float64 {
	total := 0.0
	for _, t := range s {
		total += t.Weight
	}
	return total
}

// Names returns the term names in order.
func (s TermSet) Names() []string {
	names := make([]string, len(s))
	for i, t := range s {
		names[i] = t.Name
	}
	return names
}

// TermSpec is one row of the lookup table.
type TermSpec struct {
	Name     string `koanf:"name" json:"name"`
	Category string `koanf:"category" json:"category"`
}

// Table is the enumerated weight lookup table: per-category weights,
// per-term multipliers and the catalogue of terms.
type Table struct {
	Categories  map[string]float64 `koanf:"categories"`
	Multipliers map[string]float64 `koanf:"multipliers"`
	Terms       []TermSpec         `koanf:"terms"`
}

// CategoryWeight returns the weight for category, 1.0 when unlisted.
func (t Table) CategoryWeight(category string) float64 {
	if w, ok := t.Categories[strings.TrimSpace(category)]; ok && w > 0 {
		return w
	}
	return 1.0
}

// Multiplier returns the term-specific multiplier, 1.0 when unlisted.
func (t Table) Multiplier(name string) float64 {
	if m, ok := t.Multipliers[strings.TrimSpace(name)]; ok && m > 0 {
		return m
	}
	return 1.0
}

// Default returns the built-in catalogue.
func Default() Table {
	return Table{
		Categories: map[string]float64{
			"engineering": 1.2,
			"programming": 1.3,
			"math":        1.0,
			"science":     1.0,
			"hardware":    0.9,
			"ai":          1.1,
		},
		Multipliers: map[string]float64{
			"#engineering": 1.3,
			"#programming": 1.3,
			"#math":        1.2,
			"#golang":      1.1,
			"#physics":     1.1,
		},
		Terms: []TermSpec{
			{"#engineering", "engineering"},
			{"#softwareengineering", "engineering"},
			{"#mechanicalengineering", "engineering"},
			{"#civilengineering", "engineering"},
			{"#programming", "programming"},
			{"#golang", "programming"},
			{"#rustlang", "programming"},
			{"#python", "programming"},
			{"#opensource", "programming"},
			{"#linux", "programming"},
			{"#math", "math"},
			{"#mathematics", "math"},
			{"#statistics", "math"},
			{"#physics", "science"},
			{"#chemistry", "science"},
			{"#astronomy", "science"},
			{"#electronics", "hardware"},
			{"#embedded", "hardware"},
			{"#robotics", "hardware"},
			{"#machinelearning", "ai"},
			{"#datascience", "ai"},
		},
	}
}

// InitialWeights builds the starting TermSet for table. Each base weight is
// categoryWeight * multiplier * jitter, jitter uniform in [0.9, 1.1), and all
// weights are then scaled so the total equals the term count. uniform must
// return values in [0, 1); nil uses math/rand/v2.
func InitialWeights(table Table, uniform func() float64) (TermSet, error) {
	if uniform == nil {
		uniform = rand.Float64
	}

	terms := make([]Term, 0, len(table.Terms))
	for _, ts := range table.Terms {
		name, category := strings.TrimSpace(ts.Name), strings.TrimSpace(ts.Category)
		jitter := 0.9 + 0.2*uniform()
		terms = append(terms, Term{
			Name:     name,
			Category: category,
			Weight:   table.CategoryWeight(category) * table.Multiplier(name) * jitter,
		})
	}

	set, err := NewTermSet(terms)
	if err != nil {
		return nil, err
	}

	total := set.TotalWeight()
	if total <= 0 {
		return set, nil
	}
	factor := float64(len(set)) / total
	for i := range set {
		set[i].Weight *= factor
	}
	return set, nil
}
