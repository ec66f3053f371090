// Package redaction applies user defined regular expression rules to text.
package redaction

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// compiledSet is an immutable snapshot of compiled rules keyed by the
// expression they compile to. IDs are optional and may repeat, so they
// cannot key the cache.
type compiledSet struct {
	fingerprint uint64
	byExpr      map[string]*regexp.Regexp
}

// Engine applies prioritized rules. Compiled patterns are cached and only
// rebuilt when the rule list changes.
type Engine struct {
	compiled atomic.Pointer[compiledSet]
	logger   *zap.Logger
}

// NewEngine creates an engine with an empty rule cache.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{logger: logger}
	e.compiled.Store(&compiledSet{byExpr: map[string]*regexp.Regexp{}})
	return e
}

// Compile replaces the cache with the enabled rules in rules. Rules that
// fail to compile are logged and left out; the returned error aggregates
// their *CompileError values and never prevents the other rules from
// being used.
func (e *Engine) Compile(rules []Rule) error {
	set, err := e.build(rules)
	e.compiled.Store(set)
	return err
}

func (e *Engine) build(rules []Rule) (*compiledSet, error) {
	set := &compiledSet{
		fingerprint: fingerprint(rules),
		byExpr:      make(map[string]*regexp.Regexp, len(rules)),
	}

	var errs error
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		re, err := compileRule(rule)
		if err != nil {
			cerr := &CompileError{RuleID: rule.ID, RuleName: rule.Name, Err: err}
			e.logger.Warn("Skipping redaction rule",
				zap.String("rule_id", rule.ID),
				zap.String("rule_name", rule.Name),
				zap.Error(err),
			)
			errs = multierr.Append(errs, cerr)
			continue
		}
		set.byExpr[ruleExpr(rule)] = re
	}

	e.logger.Debug("Redaction rules compiled",
		zap.Int("rules", len(rules)),
		zap.Int("compiled", len(set.byExpr)),
	)
	return set, errs
}

// snapshot returns a compiled set matching rules, compiling a fresh one
// when the cached fingerprint differs.
func (e *Engine) snapshot(rules []Rule) *compiledSet {
	current := e.compiled.Load()
	if current != nil && current.fingerprint == fingerprint(rules) {
		return current
	}
	set, _ := e.build(rules)
	e.compiled.Store(set)
	return set
}

// Apply runs the enabled rules over text, highest priority first. Each
// rule sees the output of the rules before it.
func (e *Engine) Apply(text string, rules []Rule) Result {
	result := Result{Text: text, Matches: []Match{}, RulesApplied: []string{}}
	if text == "" || len(rules) == 0 {
		return result
	}

	set := e.snapshot(rules)
	for _, rule := range Ordered(rules) {
		re, ok := set.byExpr[ruleExpr(rule)]
		if !ok {
			continue
		}

		limit := -1
		if !rule.Global {
			limit = 1
		}
		locs := re.FindAllStringSubmatchIndex(text, limit)
		if len(locs) == 0 {
			continue
		}

		var b strings.Builder
		last := 0
		for _, loc := range locs {
			replacement := expand(rule.Replacement, text, loc)
			b.WriteString(text[last:loc[0]])
			b.WriteString(replacement)
			last = loc[1]

			result.Matches = append(result.Matches, Match{
				RuleID:       rule.ID,
				RuleName:     rule.Name,
				OriginalText: text[loc[0]:loc[1]],
				RedactedText: replacement,
				Position:     loc[0],
				Length:       loc[1] - loc[0],
			})
		}
		b.WriteString(text[last:])
		text = b.String()

		result.RulesApplied = append(result.RulesApplied, rule.ID)
	}

	result.Text = text
	return result
}

// Ordered returns the enabled rules sorted by priority, highest first,
// with older rules ahead of newer ones on ties.
func Ordered(rules []Rule) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func compileRule(rule Rule) (*regexp.Regexp, error) {
	if err := ValidatePattern(rule.Pattern); err != nil {
		return nil, err
	}
	return regexp.Compile(ruleExpr(rule))
}

// ruleExpr is the expression a rule compiles to.
func ruleExpr(rule Rule) string {
	if rule.CaseSensitive {
		return rule.Pattern
	}
	return "(?i)" + rule.Pattern
}

// ValidatePattern checks that p is usable as a rule pattern.
func ValidatePattern(p string) error {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		return ErrEmptyPattern
	}
	if len(trimmed) > MaxPatternLength {
		return ErrPatternTooLong
	}
	if _, err := regexp.Compile(p); err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}
	return nil
}

func fingerprint(rules []Rule) uint64 {
	h := fnv.New64a()
	for _, r := range rules {
		h.Write([]byte(r.ID))
		h.Write([]byte{0})
		h.Write([]byte(r.Pattern))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatBool(r.Enabled)))
		h.Write([]byte(strconv.FormatBool(r.CaseSensitive)))
		h.Write([]byte{0})
	}
	return h.Sum64()
}
