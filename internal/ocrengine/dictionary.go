package ocrengine

import (
	"bufio"
	"fmt"
	"os"
)

// Charset maps CTC class indices to characters. Index 0 is the blank class;
// dictionary entries start at index 1.
type Charset struct {
	chars []string
}

// LoadCharset reads a dictionary file with one character per line.
func LoadCharset(path string) (*Charset, error) {
	f, err := os.Open(path) //nolint:gosec // G304: operator-provided dictionary path
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer func() { _ = f.Close() }()

	var chars []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		chars = append(chars, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("dictionary %s is empty", path)
	}
	return &Charset{chars: chars}, nil
}

// Size returns the number of dictionary characters, excluding the blank.
func (c *Charset) Size() int { return len(c.chars) }

// Decode maps collapsed CTC indices to a string. Out-of-range indices are
// skipped rather than failing the whole sequence.
func (c *Charset) Decode(indices []int) string {
	var out []byte
	for _, idx := range indices {
		i := idx - 1 // shift past blank
		if i < 0 || i >= len(c.chars) {
			continue
		}
		out = append(out, c.chars[i]...)
	}
	return string(out)
}
