package redaction

import (
	"errors"
	"fmt"
	"time"
)

// MaxPatternLength bounds user supplied patterns.
const MaxPatternLength = 500

var (
	ErrEmptyPattern   = errors.New("pattern is empty")
	ErrPatternTooLong = fmt.Errorf("pattern longer than %d characters", MaxPatternLength)
)

// Rule is a user defined redaction rule.
type Rule struct {
	ID            string    `json:"id" mapstructure:"id"`
	Name          string    `json:"name" mapstructure:"name"`
	Description   string    `json:"description,omitempty" mapstructure:"description"`
	Pattern       string    `json:"pattern" mapstructure:"pattern"`
	Replacement   string    `json:"replacement" mapstructure:"replacement"`
	Priority      int       `json:"priority" mapstructure:"priority"`
	Enabled       bool      `json:"enabled" mapstructure:"enabled"`
	CaseSensitive bool      `json:"caseSensitive" mapstructure:"case_sensitive"`
	Global        bool      `json:"global" mapstructure:"global"`
	Category      string    `json:"category,omitempty" mapstructure:"category"`
	CreatedAt     time.Time `json:"createdAt" mapstructure:"created_at"`
	Tags          []string  `json:"tags,omitempty" mapstructure:"tags"`
}

// Match is one replacement made by a rule. Position is a byte offset into
// the text as it was when that rule ran.
type Match struct {
	RuleID       string `json:"ruleId"`
	RuleName     string `json:"ruleName"`
	OriginalText string `json:"originalText"`
	RedactedText string `json:"redactedText"`
	Position     int    `json:"position"`
	Length       int    `json:"length"`
}

// Result is the outcome of Apply.
type Result struct {
	Text         string   `json:"text"`
	Matches      []Match  `json:"matches"`
	RulesApplied []string `json:"rulesApplied"`
}

// Conflict flags two rules whose interaction may surprise the user.
type Conflict struct {
	RuleA  string `json:"ruleA"`
	RuleB  string `json:"ruleB"`
	Reason string `json:"reason"`
}

// TestResult is what a single rule would do to a sample text.
type TestResult struct {
	Matches      []string `json:"matches"`
	Replacements []string `json:"replacements"`
	Output       string   `json:"output"`
}

// CompileError reports a rule whose pattern could not be compiled.
type CompileError struct {
	RuleID   string
	RuleName string
	Err      error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("rule %q (%s): %v", e.RuleName, e.RuleID, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}
