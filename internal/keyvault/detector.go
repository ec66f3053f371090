// Package keyvault finds API keys and other secrets in text and masks them.
package keyvault

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/raaihank/pii-sentinel/internal/patterns"
	"go.uber.org/zap"
)

// Detector scans text for secrets. User patterns are compiled once and
// cached; a pattern that does not compile is logged the first time and
// ignored after that.
type Detector struct {
	logger *zap.Logger
	custom sync.Map // pattern string -> *regexp.Regexp (nil when invalid)
}

// NewDetector creates a detector.
func NewDetector(logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{logger: logger}
}

// Detect returns every secret in text from the vendor patterns, the
// generic pattern when requested, custom patterns and stored keys, in that
// order. Hits with an identical span are reported once.
func (d *Detector) Detect(text string, opts Options) []DetectedKey {
	if text == "" {
		return []DetectedKey{}
	}

	var found []DetectedKey
	scan := func(re *regexp.Regexp, format patterns.Format) {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			if loc[0] == loc[1] {
				continue
			}
			found = append(found, newKey(text, loc[0], loc[1], format))
		}
	}

	for _, p := range patterns.Vendor() {
		scan(p.Regexp, p.Format)
	}
	if opts.IncludeGeneric {
		g := patterns.Generic()
		scan(g.Regexp, g.Format)
	}
	for _, expr := range opts.CustomPatterns {
		if re := d.compile(expr); re != nil {
			scan(re, patterns.FormatCustom)
		}
	}
	for _, key := range opts.StoredKeys {
		if key == "" {
			continue
		}
		format := DetectFormat(key)
		for offset := 0; ; {
			i := strings.Index(text[offset:], key)
			if i < 0 {
				break
			}
			start := offset + i
			found = append(found, newKey(text, start, start+len(key), format))
			offset = start + len(key)
		}
	}

	return dedupe(found)
}

func (d *Detector) compile(expr string) *regexp.Regexp {
	if cached, ok := d.custom.Load(expr); ok {
		re, _ := cached.(*regexp.Regexp)
		return re
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		d.logger.Warn("Ignoring invalid custom key pattern", zap.Error(err))
		d.custom.Store(expr, (*regexp.Regexp)(nil))
		return nil
	}
	d.custom.Store(expr, re)
	return re
}

func newKey(text string, start, end int, format patterns.Format) DetectedKey {
	from := start - ContextRadius
	if from < 0 {
		from = 0
	}
	to := end + ContextRadius
	if to > len(text) {
		to = len(text)
	}
	return DetectedKey{
		Value:      text[start:end],
		Format:     format,
		StartIndex: start,
		EndIndex:   end,
		Context:    strings.ToValidUTF8(text[from:to], ""),
	}
}

func dedupe(keys []DetectedKey) []DetectedKey {
	type span struct{ start, end int }
	seen := make(map[span]struct{}, len(keys))
	out := make([]DetectedKey, 0, len(keys))
	for _, k := range keys {
		s := span{k.StartIndex, k.EndIndex}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, k)
	}
	return out
}

// DetectFormat guesses the vendor of a key value, falling back to generic.
func DetectFormat(value string) patterns.Format {
	for _, p := range patterns.All() {
		if p.Regexp.MatchString(value) {
			return p.Format
		}
	}
	return patterns.FormatGeneric
}

// Redact rewrites keys in text from right to left. Overlapping keys are
// first merged into one span, which takes the format of its longest key.
func Redact(text string, keys []DetectedKey, mode RedactionMode) string {
	spans := mergeSpans(text, keys)
	for i := len(spans) - 1; i >= 0; i-- {
		sp := spans[i]
		text = text[:sp.start] + Mask(text[sp.start:sp.end], sp.format, mode) + text[sp.end:]
	}
	return text
}

type keySpan struct {
	start, end int
	format     patterns.Format
	longest    int
}

// mergeSpans returns the valid key spans sorted by start with overlaps
// joined.
func mergeSpans(text string, keys []DetectedKey) []keySpan {
	sorted := make([]DetectedKey, 0, len(keys))
	for _, k := range keys {
		if k.StartIndex < 0 || k.EndIndex > len(text) || k.StartIndex >= k.EndIndex {
			continue
		}
		sorted = append(sorted, k)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartIndex < sorted[j].StartIndex
	})

	var out []keySpan
	for _, k := range sorted {
		n := len(out)
		if n > 0 && k.StartIndex < out[n-1].end {
			last := &out[n-1]
			if k.EndIndex > last.end {
				last.end = k.EndIndex
			}
			if length := k.EndIndex - k.StartIndex; length > last.longest {
				last.longest = length
				last.format = k.Format
			}
			continue
		}
		out = append(out, keySpan{
			start:   k.StartIndex,
			end:     k.EndIndex,
			format:  k.Format,
			longest: k.EndIndex - k.StartIndex,
		})
	}
	return out
}

// Mask renders the replacement for one key value.
func Mask(value string, format patterns.Format, mode RedactionMode) string {
	switch mode {
	case RedactPartial:
		return partial(value)
	case RedactPlaceholder:
		return "[" + strings.ToUpper(string(format)) + "_KEY]"
	default:
		return FullRedaction
	}
}

func partial(value string) string {
	runes := []rune(value)
	n := len(runes)
	switch {
	case n <= 4:
		return strings.Repeat(MaskRune, n)
	case n <= 10:
		return strings.Repeat(MaskRune, 4) + string(runes[n-4:])
	default:
		return string(runes[:4]) + strings.Repeat(MaskRune, n-8) + string(runes[n-4:])
	}
}

// Formats returns the distinct formats among keys in first-seen order.
func Formats(keys []DetectedKey) []patterns.Format {
	seen := make(map[patterns.Format]struct{})
	var out []patterns.Format
	for _, k := range keys {
		if _, ok := seen[k.Format]; ok {
			continue
		}
		seen[k.Format] = struct{}{}
		out = append(out, k.Format)
	}
	return out
}

// Preview is a short display form of a key value that never reveals more
// than its last four characters.
func Preview(value string) string {
	if utf8.RuneCountInString(value) <= 10 {
		return partial(value)
	}
	runes := []rune(value)
	return strings.Repeat(MaskRune, 4) + string(runes[len(runes)-4:])
}
