package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/decklens/decklens/internal/deckparse"
	"github.com/decklens/decklens/internal/match"
)

// ToJSON serializes a single DecklistResult to pretty JSON.
func ToJSON(res *DecklistResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToCSV exports a decklist as CSV with one card per row.
func ToCSV(res *DecklistResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"section", "quantity", "name_cn", "name_en", "card_number", "match_type", "match_score"})

	write := func(section deckparse.Section, cards []match.ResolvedCard) {
		for _, c := range cards {
			_ = w.Write([]string{
				string(section),
				strconv.Itoa(c.Quantity),
				c.NameSource,
				c.NameCanonical,
				c.CardNumber,
				string(c.MatchType),
				fmt.Sprintf("%.1f", c.MatchScore),
			})
		}
	}
	write(deckparse.SectionLegend, res.Legend)
	write(deckparse.SectionMain, res.MainDeck)
	write(deckparse.SectionBattlefield, res.Battlefields)
	write(deckparse.SectionRune, res.Runes)
	write(deckparse.SectionSide, res.SideDeck)

	w.Flush()
	return buf.String(), w.Error()
}
