package services

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/scentmatch/engine/pkg/models"
)

// traitBlockSize is the width of each trait's reserved dimension range.
// 32 traits * 8 dims fills the 256-dim profile vector exactly.
const traitBlockSize = 8

// knownTraits is the fixed trait vocabulary in registry order. Order
// defines each trait's dimension range, so entries must never be reordered
// or removed, only appended (and only while room remains).
var knownTraits = []string{
	// scent families
	"citrus", "floral", "woody", "oriental", "fresh", "fruity",
	"green", "aquatic", "gourmand", "chypre", "fougere", "musky",
	"powdery", "spicy", "leathery", "smoky", "sweet", "herbal", "amber",
	// intensity preferences
	"intensity_light", "intensity_moderate", "intensity_strong",
	// occasions
	"occasion_daily", "occasion_office", "occasion_evening",
	"occasion_date", "occasion_sport", "occasion_formal",
	// seasons
	"season_spring", "season_summer", "season_autumn", "season_winter",
}

// DimRange is a trait's reserved half-open slice [Start, End) of the
// profile vector. The mapping is deterministic and reversible, which keeps
// stored vectors debuggable.
type DimRange struct {
	Start int
	End   int
}

// TraitRegistry maps trait identifiers to their dimension ranges.
type TraitRegistry struct {
	ranges map[string]DimRange
}

func NewTraitRegistry() *TraitRegistry {
	ranges := make(map[string]DimRange, len(knownTraits))
	for i, trait := range knownTraits {
		start := i * traitBlockSize
		if start+traitBlockSize > models.ProfileVectorDim {
			break
		}
		ranges[trait] = DimRange{Start: start, End: start + traitBlockSize}
	}
	return &TraitRegistry{ranges: ranges}
}

// Canonical normalizes a raw trait identifier from the questionnaire:
// unicode NFKC form, lower case, trimmed, spaces and dashes collapsed to
// underscores.
func (r *TraitRegistry) Canonical(trait string) string {
	s := norm.NFKC.String(trait)
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

// Lookup resolves a trait identifier to its dimension range. The second
// return is false for unknown traits.
func (r *TraitRegistry) Lookup(trait string) (DimRange, bool) {
	dims, ok := r.ranges[r.Canonical(trait)]
	return dims, ok
}

// TraitForDim reverses the mapping for debugging: which trait owns a
// given vector dimension.
func (r *TraitRegistry) TraitForDim(dim int) (string, bool) {
	if dim < 0 || dim >= len(knownTraits)*traitBlockSize {
		return "", false
	}
	return knownTraits[dim/traitBlockSize], true
}

// Traits returns the full vocabulary in registry order.
func (r *TraitRegistry) Traits() []string {
	out := make([]string, len(knownTraits))
	copy(out, knownTraits)
	return out
}
