package pipeline

import (
	"errors"

	"github.com/raaihank/pii-sentinel/internal/adapter"
	"github.com/raaihank/pii-sentinel/internal/alias"
	"github.com/raaihank/pii-sentinel/internal/keyvault"
	"github.com/raaihank/pii-sentinel/internal/patterns"
	"github.com/raaihank/pii-sentinel/internal/redaction"
)

// ErrInvalidRewrite is reported when rewriting an opaque JSON payload
// produced something that no longer parses.
var ErrInvalidRewrite = errors.New("rewritten payload is not valid JSON")

// Decision is the caller's answer to a warn-first confirmation.
type Decision string

const (
	// DecisionNone asks for confirmation when keys are found.
	DecisionNone Decision = ""
	// DecisionRedact redacts the keys and continues.
	DecisionRedact Decision = "redact"
	// DecisionAllow sends the keys unredacted.
	DecisionAllow Decision = "allow"
)

// Snapshot is the user data the orchestrator works from.
type Snapshot struct {
	Aliases []alias.Mapping  `json:"aliases"`
	Rules   []redaction.Rule `json:"rules"`
	Vault   keyvault.Policy  `json:"vault"`
}

// Options are behaviour switches that are not part of the user data.
type Options struct {
	// DecodeResponses restores real values in inbound text.
	DecodeResponses bool
	// GenerateVariations adds common written forms of names, emails and
	// phone numbers to each mapping on Reload.
	GenerateVariations bool
}

// Request is one outbound payload.
type Request struct {
	Payload []byte
	Service adapter.Service
	// Rules overrides the loaded rule set when non-nil.
	Rules []redaction.Rule
	// Policy overrides the loaded key vault policy when non-nil.
	Policy   *keyvault.Policy
	Decision Decision
}

// Result is the outcome of ProcessRequest.
type Result struct {
	Payload []byte
	Success bool
	Error   string
	Kind    adapter.Kind

	Substitutions []alias.Record
	Confidence    float64

	Redactions   []redaction.Match
	RulesApplied []string

	DetectedKeys []keyvault.DetectedKey
	KeysRedacted int
	// KeysAllowed is set when detected keys were deliberately left in place.
	KeysAllowed bool

	NeedsConfirmation bool
	KeyFormats        []patterns.Format
}

// KeyCount is the number of keys detected.
func (r Result) KeyCount() int {
	return len(r.DetectedKeys)
}

// ResponseRequest is one inbound payload.
type ResponseRequest struct {
	Payload []byte
	Service adapter.Service
}

// ResponseResult is the outcome of ProcessResponse.
type ResponseResult struct {
	Payload       []byte
	Success       bool
	Error         string
	Kind          adapter.Kind
	Substitutions []alias.Record
	Confidence    float64
}
