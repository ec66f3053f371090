package alias

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// entry is one lookup key together with its precompiled matchers.
type entry struct {
	key        string // lower-cased
	target     string // value written in place of a match
	mapping    Mapping
	word       *regexp.Regexp
	possessive *regexp.Regexp
}

// Index is an immutable pair of lookup tables built from a mapping list.
// Entries are kept sorted longest key first so that "Joe Smith" is always
// tried before "Joe".
type Index struct {
	encode []*entry
	decode []*entry
}

// BuildIndex builds both lookup tables from the enabled mappings.
// When two mappings share a key (case-insensitively) the later one wins.
func BuildIndex(mappings []Mapping, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}

	encode := make(map[string]*entry)
	decode := make(map[string]*entry)

	for _, m := range mappings {
		if !m.Enabled {
			continue
		}
		real := strings.TrimSpace(m.Real)
		alias := strings.TrimSpace(m.Alias)
		if real == "" || alias == "" {
			logger.Debug("Skipping incomplete alias mapping",
				zap.String("profile_id", m.ProfileID),
				zap.String("pii_type", string(m.PIIType)),
			)
			continue
		}

		addKey(encode, real, alias, m, logger)
		addKey(decode, alias, real, m, logger)

		for _, v := range m.RealVariations {
			if !strings.EqualFold(v, real) {
				addKey(encode, v, alias, m, logger)
			}
		}
		for _, v := range m.AliasVariations {
			if !strings.EqualFold(v, alias) {
				addKey(decode, v, real, m, logger)
			}
		}
	}

	return &Index{
		encode: sortedEntries(encode),
		decode: sortedEntries(decode),
	}
}

func addKey(table map[string]*entry, key, target string, m Mapping, logger *zap.Logger) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	lower := strings.ToLower(key)
	if prev, exists := table[lower]; exists && prev.target != target {
		logger.Debug("Alias key collision, later mapping wins",
			zap.String("pii_type", string(m.PIIType)),
			zap.String("profile_id", m.ProfileID),
		)
	}

	quoted := regexp.QuoteMeta(lower)
	table[lower] = &entry{
		key:        lower,
		target:     target,
		mapping:    m,
		word:       regexp.MustCompile(`(?i)\b` + quoted + `\b`),
		possessive: regexp.MustCompile(`(?i)\b` + quoted + `'s\b`),
	}
}

func sortedEntries(table map[string]*entry) []*entry {
	out := make([]*entry, 0, len(table))
	for _, e := range table {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(out[i].key), utf8.RuneCountInString(out[j].key)
		if li != lj {
			return li > lj
		}
		return out[i].key < out[j].key
	})
	return out
}

func (ix *Index) entries(dir Direction) []*entry {
	if dir == Decode {
		return ix.decode
	}
	return ix.encode
}

// Len returns the number of keys in each direction.
func (ix *Index) Len() (encode, decode int) {
	return len(ix.encode), len(ix.decode)
}
