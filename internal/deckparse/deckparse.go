// Package deckparse turns the card-band tokens of a decklist image into
// section-assigned line items.
package deckparse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/decklens/decklens/internal/ocrengine"
)

// Section is a deck section of the decklist template.
type Section string

const (
	SectionLegend      Section = "legend"
	SectionMain        Section = "main_deck"
	SectionBattlefield Section = "battlefield"
	SectionRune        Section = "rune"
	SectionSide        Section = "side_deck"
)

// Sections lists all sections in template order.
func Sections() []Section {
	return []Section{SectionLegend, SectionMain, SectionBattlefield, SectionRune, SectionSide}
}

// LineItem is one parsed decklist row before catalog matching.
type LineItem struct {
	Quantity      int
	RawName       string
	RawCardNumber string
	Section       Section
}

// Result carries the parsed items plus a count of tokens that could not be
// turned into a line item. Dropped tokens are diagnostic, never fatal.
type Result struct {
	Items    []LineItem
	Unparsed int
}

// Targets are the section close thresholds of the deck format.
type Targets struct {
	MainQuantity     int
	BattlefieldLines int
	RuneQuantity     int
	SideQuantityMax  int
}

// DefaultTargets matches the standard constructed deck format.
func DefaultTargets() Targets {
	return Targets{
		MainQuantity:     40,
		BattlefieldLines: 3,
		RuneQuantity:     12,
		SideQuantityMax:  8,
	}
}

const (
	minQuantity = 1
	maxQuantity = 12
)

// sectionHeaders maps a header keyword to the section it opens.
var sectionHeaders = map[string]Section{
	"传奇": SectionLegend,
	"主牌": SectionMain,
	"战场": SectionBattlefield,
	"符文": SectionRune,
	"备牌": SectionSide,
}

// runeNameMarker identifies rune cards by name regardless of where the
// parser placed them.
const runeNameMarker = "符文"

var (
	leadingQtyRe  = regexp.MustCompile(`^(\d{1,2})\s*[xX×]?\s*`)
	trailingQtyRe = regexp.MustCompile(`\s*[xX×](\d{1,2})$`)
	cardNumberRe  = regexp.MustCompile(`([0-9]{2}[A-Za-z]{2}[0-9]{3})\s*$`)
	headerNoiseRe = regexp.MustCompile(`[\d\s:：()（）/\\-]`)
)

// parseState threads the running section counters through the reducer.
type parseState struct {
	section      Section
	legendLines  int
	mainQuantity int
	bfLines      int
	runeQuantity int
	sideQuantity int
}

// Parse assigns tokens to sections with the default format targets.
func Parse(tokens []ocrengine.Token) Result {
	return ParseWithTargets(tokens, DefaultTargets())
}

// ParseWithTargets reduces tokens in order into line items. Section
// assignment prefers explicit header tokens; without one a section closes
// when its count threshold is reached. Malformed tokens are counted, not
// raised.
func ParseWithTargets(tokens []ocrengine.Token, targets Targets) Result {
	state := parseState{section: SectionLegend}
	var items []LineItem
	unparsed := 0

	for _, tok := range tokens {
		text := strings.TrimSpace(tok.Text)
		if text == "" {
			continue
		}

		if section, ok := headerSection(text); ok {
			state.section = section
			continue
		}

		item, ok := parseLine(text)
		if !ok {
			unparsed++
			continue
		}

		item, accepted := state.place(item, targets)
		if !accepted {
			unparsed++
			continue
		}
		items = append(items, item)
	}

	items = reassignRunes(items, targets)
	items, dropped := dedupe(items, targets)
	unparsed += dropped

	return Result{Items: items, Unparsed: unparsed}
}

// headerSection reports whether a token is a section header. Header tokens
// carry only the keyword plus decoration like counts, so everything but the
// letters must melt away.
func headerSection(text string) (Section, bool) {
	stripped := headerNoiseRe.ReplaceAllString(text, "")
	section, ok := sectionHeaders[stripped]
	return section, ok
}

// parseLine splits a token into quantity, name and optional card number.
// Quantity defaults to 1 when the token carries no marker; the template
// omits the marker for single copies.
func parseLine(text string) (LineItem, bool) {
	item := LineItem{Quantity: 1}

	if m := leadingQtyRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < minQuantity || n > maxQuantity {
			return LineItem{}, false
		}
		item.Quantity = n
		text = text[len(m[0]):]
	} else if m := trailingQtyRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < minQuantity || n > maxQuantity {
			return LineItem{}, false
		}
		item.Quantity = n
		text = text[:len(text)-len(m[0])]
	}

	if m := cardNumberRe.FindStringSubmatch(text); m != nil {
		item.RawCardNumber = strings.ToUpper(m[1])
		text = text[:len(text)-len(m[0])]
	}

	item.RawName = strings.TrimSpace(text)
	if item.RawName == "" {
		return LineItem{}, false
	}
	return item, true
}

// place assigns the item to the current section, advancing the section when
// a count threshold closes it. Returns false when no section can take the
// item without overfilling.
func (s *parseState) place(item LineItem, targets Targets) (LineItem, bool) {
	// Count thresholds close a section even without a header.
	for {
		switch s.section {
		case SectionLegend:
			if s.legendLines >= 1 {
				s.section = SectionMain
				continue
			}
		case SectionMain:
			if s.mainQuantity >= targets.MainQuantity {
				s.section = SectionBattlefield
				continue
			}
		case SectionBattlefield:
			if s.bfLines >= targets.BattlefieldLines {
				s.section = SectionRune
				continue
			}
		case SectionRune:
			if s.runeQuantity >= targets.RuneQuantity {
				s.section = SectionSide
				continue
			}
		}
		break
	}

	item.Section = s.section
	switch s.section {
	case SectionLegend:
		item.Quantity = 1
		s.legendLines++
	case SectionMain:
		s.mainQuantity += item.Quantity
	case SectionBattlefield:
		// Battlefields are singletons in this format.
		item.Quantity = 1
		s.bfLines++
	case SectionRune:
		if s.runeQuantity+item.Quantity > targets.RuneQuantity {
			// An over-cap rune line spills into the side deck so the
			// rune total never exceeds its target.
			item.Section = SectionSide
			if s.sideQuantity+item.Quantity > targets.SideQuantityMax {
				return LineItem{}, false
			}
			s.sideQuantity += item.Quantity
			return item, true
		}
		s.runeQuantity += item.Quantity
	case SectionSide:
		if s.sideQuantity+item.Quantity > targets.SideQuantityMax {
			return LineItem{}, false
		}
		s.sideQuantity += item.Quantity
	}
	return item, true
}

// reassignRunes moves rune-named side deck items into the rune section while
// the rune quantity cap allows it.
func reassignRunes(items []LineItem, targets Targets) []LineItem {
	runeQuantity := 0
	for _, it := range items {
		if it.Section == SectionRune {
			runeQuantity += it.Quantity
		}
	}
	for i, it := range items {
		if it.Section != SectionSide || !strings.Contains(it.RawName, runeNameMarker) {
			continue
		}
		if runeQuantity+it.Quantity > targets.RuneQuantity {
			continue
		}
		items[i].Section = SectionRune
		runeQuantity += it.Quantity
	}
	return items
}

// dedupe keeps the first occurrence of a name within each section at the
// maximum quantity seen. Battlefield lines beyond the format count are
// dropped and reported.
func dedupe(items []LineItem, targets Targets) ([]LineItem, int) {
	type key struct {
		section Section
		name    string
	}
	seen := make(map[key]int)
	out := items[:0]
	dropped := 0
	bfLines := 0

	for _, it := range items {
		k := key{section: it.Section, name: it.RawName}
		if idx, ok := seen[k]; ok {
			if it.Quantity > out[idx].Quantity {
				out[idx].Quantity = it.Quantity
			}
			continue
		}
		if it.Section == SectionBattlefield {
			if bfLines >= targets.BattlefieldLines {
				dropped++
				continue
			}
			bfLines++
		}
		seen[k] = len(out)
		out = append(out, it)
	}
	return out, dropped
}
