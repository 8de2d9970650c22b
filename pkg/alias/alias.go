// Package alias provides the label/alias resolution dictionary backing
// the engine's registries: a single Aho-Corasick automaton used both as an
// exact-lookup dictionary and as a free-text scanner over subject surface
// forms, plus a prefix trie for label-completion queries. Exact lookup and
// mention detection share one compiled structure.
package alias

import (
	"strings"
	"sync"
	"unicode"

	"github.com/coregx/ahocorasick"
	trie "github.com/derekparker/trie/v3"
	"github.com/orsinium-labs/stopwords"
)

// Entry is what the dictionary indexes: a subject sid, its canonical label,
// and the archetype label driving auto-alias generation (may be empty).
type Entry struct {
	Sid            uint64
	Label          string
	ArchetypeLabel string
	Aliases        []string
}

// Dictionary resolves labels and aliases to subject sids and scans free
// text for known surface forms. Build with Compile; not safe to mutate
// concurrently.
type Dictionary struct {
	mu sync.RWMutex

	ac           *ahocorasick.Automaton
	patternToSid [][]uint64
	patternIndex map[string]int
	sidToEntry   map[uint64]*Entry
	patterns     []string

	prefix *trie.Trie[uint64]
}

// NewDictionary returns an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{
		patternToSid: [][]uint64{},
		patternIndex: make(map[string]int),
		sidToEntry:   make(map[uint64]*Entry),
		patterns:     []string{},
		prefix:       trie.New[uint64](),
	}
}

var stopper = stopwords.MustGet("en")

// Compile (re)builds the dictionary from a full entry set. Called whenever
// a registry wants to rebuild after a batch of subject/label
// registrations.
func Compile(entries []Entry) (*Dictionary, error) {
	d := NewDictionary()

	for _, e := range entries {
		entry := e
		d.sidToEntry[e.Sid] = &entry

		surfaces := []string{e.Label}
		surfaces = append(surfaces, e.Aliases...)
		surfaces = append(surfaces, AutoAliases(e.Label, e.ArchetypeLabel)...)

		d.prefix.Add(canonicalize(e.Label), e.Sid)

		for _, surface := range surfaces {
			key := canonicalize(surface)
			if key == "" {
				continue
			}
			if idx, ok := d.patternIndex[key]; ok {
				d.patternToSid[idx] = appendUniqueSid(d.patternToSid[idx], e.Sid)
				continue
			}
			idx := len(d.patterns)
			d.patterns = append(d.patterns, key)
			d.patternIndex[key] = idx
			d.patternToSid = append(d.patternToSid, []uint64{e.Sid})
		}
	}

	automaton, err := ahocorasick.NewBuilder().
		AddStrings(d.patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	d.ac = automaton
	return d, nil
}

// Lookup returns every subject sid registered under the exact label/alias.
func (d *Dictionary) Lookup(surface string) []uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	key := canonicalize(surface)
	idx, ok := d.patternIndex[key]
	if !ok {
		return nil
	}
	return append([]uint64(nil), d.patternToSid[idx]...)
}

// Entry returns the registered Entry for a sid, or nil.
func (d *Dictionary) Entry(sid uint64) *Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sidToEntry[sid]
}

// IsKnown reports whether surface matches any registered label or alias.
func (d *Dictionary) IsKnown(surface string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.patternIndex[canonicalize(surface)]
	return ok
}

// Match is one scan hit: the byte span in the original text and the
// subjects it resolves to.
type Match struct {
	Start, End int
	Text       string
	Sids       []uint64
}

// Scan finds every known surface form mentioned in text, in O(len(text))
// via the underlying Aho-Corasick automaton.
func (d *Dictionary) Scan(text string) []Match {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.ac == nil {
		return nil
	}
	canon := canonicalize(text)
	offsets := buildOffsetMap(text)
	hits := d.ac.FindAllOverlapping([]byte(canon))

	out := make([]Match, 0, len(hits))
	for _, h := range hits {
		start := mapOffset(h.Start, offsets, len(text))
		end := mapOffset(h.End, offsets, len(text))
		if start >= len(text) || end > len(text) || start >= end {
			continue
		}
		out = append(out, Match{
			Start: start,
			End:   end,
			Text:  text[start:end],
			Sids:  append([]uint64(nil), d.patternToSid[h.PatternID]...),
		})
	}
	return out
}

// PrefixLabels returns every registered canonical label sharing the given
// prefix, for schema introspection.
func (d *Dictionary) PrefixLabels(prefix string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.prefix.PrefixSearch(canonicalize(prefix))
}

// --- canonicalization, shared by pattern compilation and scanning ---

func isJoiner(r rune) bool {
	switch r {
	case '\'', '’', '‘', '-', '–', '—', '·', '.', '_', '/', '#', '&':
		return true
	default:
		return false
	}
}

func canonicalize(s string) string {
	var out strings.Builder
	out.Grow(len(s))
	lastWasSpace := true
	for _, ch := range s {
		c := unicode.ToLower(ch)
		if c == '’' || c == '‘' {
			c = '\''
		}
		if c == '–' || c == '—' {
			c = '-'
		}
		if unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c) {
			out.WriteRune(c)
			lastWasSpace = false
		} else if !lastWasSpace {
			out.WriteRune(' ')
			lastWasSpace = true
		}
	}
	result := out.String()
	if len(result) > 0 && result[len(result)-1] == ' ' {
		result = result[:len(result)-1]
	}
	return result
}

func buildOffsetMap(original string) []int {
	mapping := make([]int, 0, len(original)+1)
	lastWasSpace := true
	origPos := 0
	for _, ch := range original {
		runeLen := len(string(ch))
		c := unicode.ToLower(ch)
		if c == '’' || c == '‘' {
			c = '\''
		}
		if c == '–' || c == '—' {
			c = '-'
		}
		if unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c) {
			canonLen := len(string(c))
			for i := 0; i < canonLen; i++ {
				mapping = append(mapping, origPos)
			}
			lastWasSpace = false
		} else if !lastWasSpace {
			mapping = append(mapping, origPos)
			lastWasSpace = true
		}
		origPos += runeLen
	}
	mapping = append(mapping, origPos)
	return mapping
}

func mapOffset(canonOffset int, mapping []int, originalLen int) int {
	if canonOffset >= len(mapping) {
		return originalLen
	}
	if canonOffset < 0 {
		return 0
	}
	return mapping[canonOffset]
}

func tokenizeNorm(text string) []string {
	normalized := canonicalize(text)
	words := strings.Fields(normalized)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" && !stopper.Contains(w) {
			out = append(out, w)
		}
	}
	return out
}

func appendUniqueSid(s []uint64, sid uint64) []uint64 {
	for _, v := range s {
		if v == sid {
			return s
		}
	}
	return append(s, sid)
}

// AutoAliases generates surname/acronym-style aliases for a label, chosen
// by the archetype label driving it: "Actor"-like archetypes get surname
// aliasing, "Faction"-like archetypes get acronym aliasing, place-like
// archetypes alias on their leading token, anything else gets none.
func AutoAliases(label, archetypeLabel string) []string {
	tokens := tokenizeNorm(label)
	if len(tokens) <= 1 {
		return nil
	}
	first, last := tokens[0], tokens[len(tokens)-1]
	kind := strings.ToLower(archetypeLabel)
	var out []string

	if isActorLike(kind) {
		if len(last) >= 3 {
			out = append(out, last)
		}
		if len(tokens) >= 3 && first != last {
			out = append(out, first+" "+last)
		}
		if len(first) >= 4 && first != last {
			out = append(out, first)
		}
	}

	if isGroupLike(kind) {
		var acronym strings.Builder
		for _, tok := range tokens {
			if tok != "" {
				acronym.WriteByte(tok[0])
			}
		}
		if acronym.Len() >= 2 && acronym.Len() <= 5 {
			out = append(out, acronym.String())
		}
	}

	if isPlaceLike(kind) && len(first) >= 4 {
		out = append(out, first)
	}

	return out
}

func isActorLike(kind string) bool {
	return strings.Contains(kind, "actor") || strings.Contains(kind, "character") || strings.Contains(kind, "npc")
}

func isGroupLike(kind string) bool {
	return strings.Contains(kind, "faction") || strings.Contains(kind, "organization") || strings.Contains(kind, "guild")
}

func isPlaceLike(kind string) bool {
	return strings.Contains(kind, "location") || strings.Contains(kind, "place")
}
