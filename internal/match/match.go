// Package match resolves parsed line items against the card catalog with a
// tiered strategy, strongest first.
package match

import (
	"log/slog"
	"sync/atomic"

	"github.com/decklens/decklens/internal/catalog"
	"github.com/decklens/decklens/internal/deckparse"
)

// Type tags which tier produced a match.
type Type string

const (
	TypeExactFull       Type = "exact_full"
	TypeExactNormalized Type = "exact_normalized"
	TypeFuzzyBaseName   Type = "fuzzy_base_name"
	TypeFuzzy           Type = "fuzzy"
	TypeUnmatched       Type = "unmatched"
)

// ResolvedCard is a line item resolved against the catalog. Field names on
// the wire follow the public response format.
type ResolvedCard struct {
	NameSource    string  `json:"name_cn"`
	NameCanonical string  `json:"name_en,omitempty"`
	Quantity      int     `json:"quantity"`
	CardNumber    string  `json:"card_number,omitempty"`
	Type          string  `json:"type_en,omitempty"`
	Domain        string  `json:"domain_en,omitempty"`
	Cost          string  `json:"cost,omitempty"`
	Rarity        string  `json:"rarity_en,omitempty"`
	ImageRef      string  `json:"image_url_en,omitempty"`
	MatchScore    float64 `json:"match_score"`
	MatchType     Type    `json:"match_type"`
}

// Config tunes the fuzzy tier.
type Config struct {
	// FuzzyThreshold is the minimum similarity in [0,1] for accepting a
	// fuzzy candidate.
	FuzzyThreshold float64

	// FuzzyCandidates bounds how many ranked candidates the fuzzy tier
	// considers.
	FuzzyCandidates int
}

// DefaultConfig returns the documented matching policy.
func DefaultConfig() Config {
	return Config{
		FuzzyThreshold:  0.60,
		FuzzyCandidates: 5,
	}
}

// Matcher resolves names against a read-only catalog. Safe for concurrent
// use.
type Matcher struct {
	cat    *catalog.Catalog
	cfg    Config
	logger *slog.Logger

	// numberMismatches counts matches whose raw card number disagreed with
	// the matched entry. Surfaced in diagnostics, never changes the match.
	numberMismatches atomic.Int64
}

// New builds a matcher over the catalog.
func New(cat *catalog.Catalog, cfg Config, logger *slog.Logger) *Matcher {
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = DefaultConfig().FuzzyThreshold
	}
	if cfg.FuzzyCandidates <= 0 {
		cfg.FuzzyCandidates = DefaultConfig().FuzzyCandidates
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{cat: cat, cfg: cfg, logger: logger}
}

// NumberMismatches returns how many resolved cards carried a raw card number
// that did not correspond to the matched entry.
func (m *Matcher) NumberMismatches() int64 {
	return m.numberMismatches.Load()
}

// Resolve matches one line item. Tiers run in strict order and the first
// tier producing a result wins; a miss on every tier yields an unmatched
// record preserving the raw name and quantity.
func (m *Matcher) Resolve(item deckparse.LineItem) ResolvedCard {
	if entry := m.cat.LookupExact(item.RawName); entry != nil {
		return m.resolved(item, entry, 100, TypeExactFull)
	}
	if entry := m.cat.LookupNormalized(item.RawName); entry != nil {
		return m.resolved(item, entry, 100, TypeExactNormalized)
	}
	if card, ok := m.resolveBaseName(item); ok {
		return card
	}
	if card, ok := m.resolveFuzzy(item); ok {
		return card
	}
	return ResolvedCard{
		NameSource: item.RawName,
		Quantity:   item.Quantity,
		MatchScore: 0,
		MatchType:  TypeUnmatched,
	}
}

// resolveBaseName matches on the qualifier-stripped root identity. The score
// starts at 90 and earns up to 10 more for qualifier agreement, so a variant
// mismatch stays distinguishable from an exact hit.
func (m *Matcher) resolveBaseName(item deckparse.LineItem) (ResolvedCard, bool) {
	entries := m.cat.LookupBase(item.RawName)
	if len(entries) == 0 {
		return ResolvedCard{}, false
	}

	itemQual := catalog.Normalize(catalog.Qualifier(item.RawName))
	best := entries[0]
	bestSim := 0.0
	for _, e := range entries {
		sim := qualifierSimilarity(itemQual, e)
		if sim > bestSim {
			best = e
			bestSim = sim
		}
	}
	score := 90 + 10*bestSim
	return m.resolved(item, best, score, TypeFuzzyBaseName), true
}

func qualifierSimilarity(itemQual string, e *catalog.Entry) float64 {
	best := 0.0
	for _, name := range append([]string{e.NameLocalized}, e.Variants...) {
		entryQual := catalog.Normalize(catalog.Qualifier(name))
		var sim float64
		switch {
		case itemQual == "" && entryQual == "":
			sim = 1
		case itemQual == "" || entryQual == "":
			sim = 0
		default:
			sim = catalog.Similarity(itemQual, entryQual)
		}
		if sim > best {
			best = sim
		}
	}
	return best
}

// resolveFuzzy accepts the top similarity-ranked candidate when it clears
// the configured threshold.
func (m *Matcher) resolveFuzzy(item deckparse.LineItem) (ResolvedCard, bool) {
	candidates := m.cat.FuzzyCandidates(item.RawName, m.cfg.FuzzyCandidates)
	if len(candidates) == 0 {
		return ResolvedCard{}, false
	}
	top := candidates[0]
	if top.Similarity < m.cfg.FuzzyThreshold {
		return ResolvedCard{}, false
	}
	return m.resolved(item, top.Entry, top.Similarity*100, TypeFuzzy), true
}

func (m *Matcher) resolved(item deckparse.LineItem, entry *catalog.Entry, score float64, mt Type) ResolvedCard {
	if item.RawCardNumber != "" && item.RawCardNumber != entry.CardNumber {
		m.numberMismatches.Add(1)
		m.logger.Debug("card number disagrees with matched entry",
			"raw_name", item.RawName,
			"raw_number", item.RawCardNumber,
			"matched_number", entry.CardNumber)
	}
	return ResolvedCard{
		NameSource:    item.RawName,
		NameCanonical: entry.NameCanonical,
		Quantity:      item.Quantity,
		CardNumber:    entry.CardNumber,
		Type:          entry.Type,
		Domain:        entry.Domain,
		Cost:          entry.Cost,
		Rarity:        entry.Rarity,
		ImageRef:      entry.ImageRef,
		MatchScore:    score,
		MatchType:     mt,
	}
}
