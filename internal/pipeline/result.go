package pipeline

import (
	"github.com/decklens/decklens/internal/deckparse"
	"github.com/decklens/decklens/internal/match"
	"github.com/decklens/decklens/internal/metadata"
)

// Stats summarizes matching quality for one decklist.
type Stats struct {
	TotalCards   int     `json:"total_cards"`
	MatchedCards int     `json:"matched_cards"`
	Accuracy     float64 `json:"accuracy"`
}

// DecklistResult is the structured outcome for one image.
type DecklistResult struct {
	ID           string              `json:"decklist_id"`
	Metadata     metadata.Parsed     `json:"metadata"`
	Legend       []match.ResolvedCard `json:"legend"`
	MainDeck     []match.ResolvedCard `json:"main_deck"`
	Battlefields []match.ResolvedCard `json:"battlefields"`
	Runes        []match.ResolvedCard `json:"runes"`
	SideDeck     []match.ResolvedCard `json:"side_deck"`
	Stats        Stats                `json:"stats"`

	// UnparsedTokens counts card-band tokens dropped during parsing.
	UnparsedTokens int `json:"unparsed_tokens,omitempty"`
}

// Cards iterates all resolved cards across the five sections in template
// order.
func (r *DecklistResult) Cards() []match.ResolvedCard {
	out := make([]match.ResolvedCard, 0,
		len(r.Legend)+len(r.MainDeck)+len(r.Battlefields)+len(r.Runes)+len(r.SideDeck))
	out = append(out, r.Legend...)
	out = append(out, r.MainDeck...)
	out = append(out, r.Battlefields...)
	out = append(out, r.Runes...)
	out = append(out, r.SideDeck...)
	return out
}

func (r *DecklistResult) appendCard(section deckparse.Section, card match.ResolvedCard) {
	switch section {
	case deckparse.SectionLegend:
		r.Legend = append(r.Legend, card)
	case deckparse.SectionMain:
		r.MainDeck = append(r.MainDeck, card)
	case deckparse.SectionBattlefield:
		r.Battlefields = append(r.Battlefields, card)
	case deckparse.SectionRune:
		r.Runes = append(r.Runes, card)
	case deckparse.SectionSide:
		r.SideDeck = append(r.SideDeck, card)
	}
}

// computeStats fills Stats from the section contents. An empty decklist
// counts as fully accurate.
func (r *DecklistResult) computeStats() {
	total, matched := 0, 0
	for _, c := range r.Cards() {
		total += c.Quantity
		if c.MatchType != match.TypeUnmatched {
			matched += c.Quantity
		}
	}
	r.Stats.TotalCards = total
	r.Stats.MatchedCards = matched
	if total == 0 {
		r.Stats.Accuracy = 100
		return
	}
	r.Stats.Accuracy = 100 * float64(matched) / float64(total)
}
