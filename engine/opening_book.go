package engine

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"strings"

	"movemate/position"
)

//go:embed books/sicilian.json
var sicilianBook []byte

// BookEntry maps a fingerprint prefix to candidate replies. Exactly one of
// Moves and Replies is set. Replies is keyed by the opponent's last move in
// SAN.
type BookEntry struct {
	Key     string              `json:"key"`
	Moves   []string            `json:"moves,omitempty"`
	Replies map[string][]string `json:"replies,omitempty"`
}

// Book is an ordered list of entries. Lookups scan it in order, so earlier
// entries win when several keys match.
type Book struct {
	Entries []BookEntry
}

// LoadBook reads a book stored as a JSON array of entries.
func LoadBook(r io.Reader) (*Book, error) {
	var entries []BookEntry
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("opening book: %w", err)
	}
	for i, e := range entries {
		if e.Key == "" {
			return nil, fmt.Errorf("opening book: entry %d has no key", i)
		}
		if (len(e.Moves) == 0) == (len(e.Replies) == 0) {
			return nil, fmt.Errorf("opening book: entry %q needs exactly one of moves or replies", e.Key)
		}
	}
	return &Book{Entries: entries}, nil
}

// SicilianBook returns the built-in Sicilian Defence book.
func SicilianBook() *Book {
	b, err := LoadBook(bytes.NewReader(sicilianBook))
	if err != nil {
		panic(err)
	}
	return b
}

// Lookup returns a book move in SAN for p. Keys match when they are a string
// prefix of the position fingerprint. lastMove is the opponent's previous
// move in SAN and is only consulted for reply entries; a reply entry without
// a line for lastMove does not stop the scan.
func (b *Book) Lookup(p *position.Position, lastMove string, rng *rand.Rand) (string, bool) {
	if b == nil {
		return "", false
	}
	fp := p.Fingerprint()
	for _, e := range b.Entries {
		if !strings.HasPrefix(fp, e.Key) {
			continue
		}
		candidates := e.Moves
		if e.Replies != nil {
			candidates = e.Replies[lastMove]
		}
		if len(candidates) == 0 {
			continue
		}
		return candidates[rng.Intn(len(candidates))], true
	}
	return "", false
}

// Move resolves a book hit to a legal move. A book line that does not fit
// the position returns an error matching position.ErrIllegalMove.
func (b *Book) Move(p *position.Position, lastMove string, rng *rand.Rand) (position.Move, bool, error) {
	san, ok := b.Lookup(p, lastMove, rng)
	if !ok {
		return position.NullMove, false, nil
	}
	m, err := p.ParseSAN(san)
	if err != nil {
		return position.NullMove, false, fmt.Errorf("book move %s: %w", san, err)
	}
	return m, true, nil
}
