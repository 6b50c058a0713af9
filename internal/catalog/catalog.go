package catalog

import (
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"gopkg.in/yaml.v3"
)

//go:embed data/cards.csv
var embeddedDataset []byte

// Entry is one canonical card record. Entries are immutable after load and
// shared read-only across the process.
type Entry struct {
	NameLocalized string   // primary localized (Chinese) display name
	Variants      []string // additional known spellings of the localized name
	NameCanonical string   // canonical (English) display name
	CardNumber    string   // unique set+collector code, e.g. 01IO060
	Type          string
	Domain        string
	Cost          string
	Rarity        string
	ImageRef      string
}

// Candidate pairs an entry with a similarity score in [0,1].
type Candidate struct {
	Entry      *Entry
	Similarity float64
}

// Catalog is the in-memory reference store of canonical cards. It is built
// once at startup and never mutated afterwards, so lookups need no locking.
type Catalog struct {
	entries []*Entry

	exact map[string][]*Entry // every localized spelling, verbatim
	norm  map[string][]*Entry // normalized spelling
	base  map[string][]*Entry // normalized base name (qualifiers stripped)

	baseNames []string // sorted unique keys of base, for fuzzy scans
	fullNames []string // sorted unique normalized full names
}

// Config controls catalog construction.
type Config struct {
	DatasetPath string // CSV dataset; empty means the embedded default
	AliasPath   string // optional YAML alias overlay
}

// Load builds a catalog from the configured dataset and optional alias file.
func Load(cfg Config) (*Catalog, error) {
	var r io.Reader
	if cfg.DatasetPath != "" {
		f, err := os.Open(cfg.DatasetPath) //nolint:gosec // G304: operator-provided dataset path
		if err != nil {
			return nil, fmt.Errorf("open card dataset: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	} else {
		r = strings.NewReader(string(embeddedDataset))
	}

	entries, err := parseDataset(r)
	if err != nil {
		return nil, err
	}

	if cfg.AliasPath != "" {
		if err := applyAliases(entries, cfg.AliasPath); err != nil {
			return nil, err
		}
	}

	c := buildIndexes(entries)
	slog.Info("card catalog loaded",
		"entries", len(c.entries),
		"base_names", len(c.baseNames))
	return c, nil
}

// parseDataset reads the CSV dataset. Expected header:
// name_zh,name_en,card_number,type,domain,cost,rarity,image_url
func parseDataset(r io.Reader) ([]*Entry, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read dataset header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")] = i
	}
	for _, required := range []string{"name_zh", "name_en", "card_number"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("dataset missing column %q", required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var entries []*Entry
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dataset row: %w", err)
		}
		name := field(row, "name_zh")
		if name == "" {
			continue
		}
		entries = append(entries, &Entry{
			NameLocalized: name,
			NameCanonical: field(row, "name_en"),
			CardNumber:    field(row, "card_number"),
			Type:          field(row, "type"),
			Domain:        field(row, "domain"),
			Cost:          field(row, "cost"),
			Rarity:        field(row, "rarity"),
			ImageRef:      field(row, "image_url"),
		})
	}
	if len(entries) == 0 {
		return nil, errors.New("card dataset is empty")
	}
	return entries, nil
}

// aliasFile maps a card number to extra localized spellings seen in the wild
// (OCR confusions, alternate printings).
type aliasFile struct {
	Aliases map[string][]string `yaml:"aliases"`
}

func applyAliases(entries []*Entry, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-provided alias path
	if err != nil {
		return fmt.Errorf("read alias file: %w", err)
	}
	var af aliasFile
	if err := yaml.Unmarshal(data, &af); err != nil {
		return fmt.Errorf("parse alias file: %w", err)
	}
	byNumber := make(map[string]*Entry, len(entries))
	for _, e := range entries {
		byNumber[e.CardNumber] = e
	}
	for number, names := range af.Aliases {
		e, ok := byNumber[number]
		if !ok {
			slog.Warn("alias for unknown card number", "card_number", number)
			continue
		}
		e.Variants = append(e.Variants, names...)
	}
	return nil
}

func buildIndexes(entries []*Entry) *Catalog {
	c := &Catalog{
		entries: entries,
		exact:   make(map[string][]*Entry),
		norm:    make(map[string][]*Entry),
		base:    make(map[string][]*Entry),
	}
	for _, e := range entries {
		spellings := append([]string{e.NameLocalized}, e.Variants...)
		for _, s := range spellings {
			c.exact[s] = append(c.exact[s], e)
			n := Normalize(s)
			if n != "" {
				c.norm[n] = append(c.norm[n], e)
			}
			b := Normalize(BaseName(s))
			if b != "" {
				c.base[b] = append(c.base[b], e)
			}
		}
	}
	for n := range c.norm {
		c.fullNames = append(c.fullNames, n)
	}
	for b := range c.base {
		c.baseNames = append(c.baseNames, b)
	}
	sort.Strings(c.fullNames)
	sort.Strings(c.baseNames)
	return c
}

// Size returns the number of catalog entries.
func (c *Catalog) Size() int { return len(c.entries) }

// BaseNameCount returns the number of distinct indexed base names.
func (c *Catalog) BaseNameCount() int { return len(c.baseNames) }

// LookupExact returns the entry whose localized name or variant equals name
// verbatim, or nil. Ambiguity resolves to the lowest card number.
func (c *Catalog) LookupExact(name string) *Entry {
	return lowestNumber(c.exact[name])
}

// LookupNormalized matches after normalization (case, width, whitespace and
// punctuation insensitive).
func (c *Catalog) LookupNormalized(name string) *Entry {
	return lowestNumber(c.norm[Normalize(name)])
}

// LookupBase returns all entries sharing the normalized base name of name.
// The slice is ordered by card number; callers must not mutate it.
func (c *Catalog) LookupBase(name string) []*Entry {
	matches := c.base[Normalize(BaseName(name))]
	if len(matches) == 0 {
		return nil
	}
	ordered := make([]*Entry, len(matches))
	copy(ordered, matches)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CardNumber < ordered[j].CardNumber
	})
	return ordered
}

// FuzzyCandidates ranks catalog entries by similarity to name, best first,
// returning at most limit candidates. Base names are compared against the
// query's base name and full localized names against the whole query; each
// entry keeps its best similarity. Unknown input yields an empty slice,
// never an error.
func (c *Catalog) FuzzyCandidates(name string, limit int) []Candidate {
	baseQuery := Normalize(BaseName(name))
	fullQuery := Normalize(name)
	if fullQuery == "" || limit <= 0 {
		return nil
	}
	best := make(map[string]Candidate, len(c.baseNames))
	consider := func(entry *Entry, sim float64) {
		if entry == nil || sim <= 0 {
			return
		}
		if cur, ok := best[entry.CardNumber]; !ok || sim > cur.Similarity {
			best[entry.CardNumber] = Candidate{Entry: entry, Similarity: sim}
		}
	}
	for _, bn := range c.baseNames {
		consider(lowestNumber(c.base[bn]), Similarity(baseQuery, bn))
	}
	// Full-name pass catches queries whose qualifier text drifted too far
	// for the base-name comparison, such as a comma lost to the recognizer.
	for _, fn := range c.fullNames {
		consider(lowestNumber(c.norm[fn]), Similarity(fullQuery, fn))
	}
	candidates := make([]Candidate, 0, len(best))
	for _, cand := range best {
		candidates = append(candidates, cand)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Entry.CardNumber < candidates[j].Entry.CardNumber
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// Similarity is the normalized Levenshtein ratio 1 - dist/max(len) over rune
// counts, in [0,1]. Two empty strings are treated as dissimilar.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	la := len([]rune(a))
	lb := len([]rune(b))
	max := la
	if lb > max {
		max = lb
	}
	dist := levenshtein.ComputeDistance(a, b)
	if dist >= max {
		return 0
	}
	return 1 - float64(dist)/float64(max)
}

func lowestNumber(matches []*Entry) *Entry {
	var best *Entry
	for _, e := range matches {
		if best == nil || e.CardNumber < best.CardNumber {
			best = e
		}
	}
	return best
}
