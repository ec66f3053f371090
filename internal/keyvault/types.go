package keyvault

import "github.com/raaihank/pii-sentinel/internal/patterns"

// RedactionMode selects how a detected key is rewritten.
type RedactionMode string

const (
	RedactFull        RedactionMode = "full"
	RedactPartial     RedactionMode = "partial"
	RedactPlaceholder RedactionMode = "placeholder"
)

// ProtectionMode selects what the pipeline does when keys are found.
type ProtectionMode string

const (
	ModeAutoRedact ProtectionMode = "auto-redact"
	ModeWarnFirst  ProtectionMode = "warn-first"
	ModeLogOnly    ProtectionMode = "log-only"
)

// FullRedaction replaces a key in RedactFull mode.
const FullRedaction = "[REDACTED_API_KEY]"

// MaskRune fills the hidden part of a key in RedactPartial mode.
const MaskRune = "•"

// ContextRadius is how many bytes around a hit are kept for preview.
const ContextRadius = 30

// DetectedKey is one secret found in a text. Offsets are byte offsets.
type DetectedKey struct {
	Value      string          `json:"value"`
	Format     patterns.Format `json:"format"`
	StartIndex int             `json:"startIndex"`
	EndIndex   int             `json:"endIndex"`
	Context    string          `json:"context"`
}

// Options controls which sources Detect consults.
type Options struct {
	IncludeGeneric bool
	CustomPatterns []string
	StoredKeys     []string
}

// Policy is the user's key vault configuration.
type Policy struct {
	Enabled                 bool           `json:"enabled" mapstructure:"enabled"`
	Mode                    ProtectionMode `json:"mode" mapstructure:"mode"`
	EnabledKeys             []string       `json:"enabledKeys" mapstructure:"enabled_keys"`
	CustomPatterns          []string       `json:"customPatterns" mapstructure:"custom_patterns"`
	IncludeGenericDetection bool           `json:"includeGenericDetection" mapstructure:"include_generic_detection"`
	RedactionMode           RedactionMode  `json:"redactionMode" mapstructure:"redaction_mode"`
}

// Options converts the policy into detection options.
func (p Policy) Options() Options {
	return Options{
		IncludeGeneric: p.IncludeGenericDetection,
		CustomPatterns: p.CustomPatterns,
		StoredKeys:     p.EnabledKeys,
	}
}

// EffectiveRedactionMode falls back to placeholders when unset.
func (p Policy) EffectiveRedactionMode() RedactionMode {
	switch p.RedactionMode {
	case RedactFull, RedactPartial, RedactPlaceholder:
		return p.RedactionMode
	}
	return RedactPlaceholder
}

// EffectiveMode falls back to auto-redact when unset.
func (p Policy) EffectiveMode() ProtectionMode {
	switch p.Mode {
	case ModeAutoRedact, ModeWarnFirst, ModeLogOnly:
		return p.Mode
	}
	return ModeAutoRedact
}
