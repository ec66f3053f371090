// Package alias implements the bidirectional alias substitution engine.
//
// Real personal data is swapped for fictitious stand-ins on the way out
// (Encode) and restored on the way back (Decode). Matching is
// case-insensitive and word-bounded, longer keys win over shorter ones, and
// the replacement follows the casing of the text it replaces.
package alias

import (
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
)

// Engine owns the current alias index. Reload publishes a new index with a
// single pointer swap, so Substitute always sees one complete snapshot.
type Engine struct {
	index  atomic.Pointer[Index]
	logger *zap.Logger
}

// NewEngine builds an engine from an initial mapping list.
func NewEngine(mappings []Mapping, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{logger: logger}
	e.Reload(mappings)
	return e
}

// Reload rebuilds the index from mappings and swaps it in.
func (e *Engine) Reload(mappings []Mapping) {
	ix := BuildIndex(mappings, e.logger)
	e.index.Store(ix)

	enc, dec := ix.Len()
	e.logger.Info("Alias index rebuilt",
		zap.Int("mappings", len(mappings)),
		zap.Int("encode_keys", enc),
		zap.Int("decode_keys", dec),
	)
}

// Snapshot returns the index currently in use.
func (e *Engine) Snapshot() *Index {
	return e.index.Load()
}

// span is a half-open byte range of already rewritten text.
type span struct {
	start, end int
}

func overlaps(s, e int, protected []span) bool {
	for _, p := range protected {
		if s < p.end && p.start < e {
			return true
		}
	}
	return false
}

// Substitute rewrites every known key in text for the given direction.
func (e *Engine) Substitute(text string, dir Direction) Result {
	return substitute(e.index.Load(), text, dir)
}

func substitute(ix *Index, text string, dir Direction) Result {
	result := Result{Text: text, Substitutions: []Record{}, Confidence: 1.0}
	if ix == nil || text == "" {
		return result
	}

	entries := ix.entries(dir)
	var protected []span

	apply := func(en *entry, locs [][]int, possessive bool) {
		records := make([]Record, 0, len(locs))
		// Right to left: earlier offsets stay valid after each rewrite.
		for i := len(locs) - 1; i >= 0; i-- {
			s, end := locs[i][0], locs[i][1]
			if overlaps(s, end, protected) {
				continue
			}
			matched := text[s:end]

			var replacement string
			if possessive {
				replacement = preserveCase(matched[:len(matched)-2], en.target) + "'s"
			} else {
				replacement = preserveCase(matched, en.target)
			}

			text = text[:s] + replacement + text[end:]
			delta := len(replacement) - (end - s)
			for j := range protected {
				if protected[j].start >= end {
					protected[j].start += delta
					protected[j].end += delta
				}
			}
			protected = append(protected, span{start: s, end: s + len(replacement)})

			records = append(records, Record{
				From:      matched,
				To:        replacement,
				Position:  s,
				PIIType:   en.mapping.PIIType,
				ProfileID: en.mapping.ProfileID,
			})
		}
		for i := len(records) - 1; i >= 0; i-- {
			result.Substitutions = append(result.Substitutions, records[i])
		}
	}

	for _, en := range entries {
		if locs := en.word.FindAllStringIndex(text, -1); len(locs) > 0 {
			apply(en, locs, false)
		}
	}

	// Possessive forms that the direct pass left untouched.
	for _, en := range entries {
		if locs := en.possessive.FindAllStringIndex(text, -1); len(locs) > 0 {
			apply(en, locs, true)
		}
	}

	result.Text = text
	if len(result.Substitutions) > 0 {
		result.Confidence = SubstitutedConfidence
	}
	return result
}

// FindPII reports every real value present in text without rewriting it.
// Matches are ordered by position, longer matches first on ties.
func (e *Engine) FindPII(text string) []Match {
	ix := e.index.Load()
	if ix == nil || text == "" {
		return nil
	}

	var matches []Match
	for _, en := range ix.encode {
		for _, loc := range en.word.FindAllStringIndex(text, -1) {
			matches = append(matches, Match{
				Text:        text[loc[0]:loc[1]],
				Start:       loc[0],
				End:         loc[1],
				Alias:       en.target,
				PIIType:     en.mapping.PIIType,
				ProfileID:   en.mapping.ProfileID,
				ProfileName: en.mapping.ProfileName,
			})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Start != matches[j].Start {
			return matches[i].Start < matches[j].Start
		}
		return matches[i].End > matches[j].End
	})
	return matches
}

// HasMappings reports whether any key is loaded.
func (e *Engine) HasMappings() bool {
	ix := e.index.Load()
	if ix == nil {
		return false
	}
	enc, _ := ix.Len()
	return enc > 0
}
