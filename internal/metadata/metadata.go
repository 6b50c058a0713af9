// Package metadata derives tournament fields from the tokens of a decklist's
// metadata band. Every field is independently optional; an empty result is a
// valid outcome, not an error.
package metadata

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/decklens/decklens/internal/ocrengine"
)

// Parsed holds the tournament fields found in the metadata band. Nil fields
// mean the band did not carry them.
type Parsed struct {
	Placement *int    `json:"placement"`
	Event     *string `json:"event"`
	Date      *string `json:"date"`
}

var (
	digitsRe     = regexp.MustCompile(`\d+`)
	standaloneRe = regexp.MustCompile(`^\d{1,3}$`)
	dateRe       = regexp.MustCompile(`(\d{4})[-/](\d{2})[-/](\d{2})`)
)

// placementKeywords mark a token as carrying a tournament rank.
var placementKeywords = []string{"排名", "#"}

// eventKeywords identify a token as the event name.
var eventKeywords = []string{"区域公开赛", "赛区"}

// rule extracts at most one field from the full token list. Rules run in
// order and never see each other's state beyond the shared result.
type rule func(tokens []ocrengine.Token, out *Parsed)

var rules = []rule{extractPlacement, extractEvent, extractDate}

// Parse evaluates every rule over all tokens. Each field takes its first
// matching token; later matches are ignored.
func Parse(tokens []ocrengine.Token) Parsed {
	var out Parsed
	for _, r := range rules {
		r(tokens, &out)
	}
	return out
}

func extractPlacement(tokens []ocrengine.Token, out *Parsed) {
	for _, tok := range tokens {
		if out.Placement != nil {
			return
		}
		for _, kw := range placementKeywords {
			if strings.Contains(tok.Text, kw) {
				if m := digitsRe.FindString(tok.Text); m != "" {
					if n, err := strconv.Atoi(m); err == nil {
						out.Placement = &n
						return
					}
				}
			}
		}
	}
	// Fallback: a bare small integer token, accepted only when no keyword
	// form was present anywhere.
	for _, tok := range tokens {
		text := strings.TrimSpace(tok.Text)
		if standaloneRe.MatchString(text) {
			if n, err := strconv.Atoi(text); err == nil {
				out.Placement = &n
				return
			}
		}
	}
}

func extractEvent(tokens []ocrengine.Token, out *Parsed) {
	for _, tok := range tokens {
		for _, kw := range eventKeywords {
			if strings.Contains(tok.Text, kw) {
				text := strings.TrimSpace(tok.Text)
				out.Event = &text
				return
			}
		}
	}
}

func extractDate(tokens []ocrengine.Token, out *Parsed) {
	for _, tok := range tokens {
		if m := dateRe.FindStringSubmatch(tok.Text); m != nil {
			date := m[1] + "-" + m[2] + "-" + m[3]
			out.Date = &date
			return
		}
	}
}
