package proxy

import (
	"encoding/json"
	"net/http"

	"github.com/raaihank/pii-sentinel/internal/alias"
	"github.com/raaihank/pii-sentinel/internal/keyvault"
	"github.com/raaihank/pii-sentinel/internal/patterns"
	"github.com/raaihank/pii-sentinel/internal/redaction"
)

// SanitizeRequest is the body of /v1/sanitize/request and
// /v1/sanitize/response. Service wins over URL when both are set.
type SanitizeRequest struct {
	Service  string           `json:"service,omitempty"`
	URL      string           `json:"url,omitempty"`
	Body     string           `json:"body"`
	Decision string           `json:"decision,omitempty"`
	Rules    []redaction.Rule `json:"rules,omitempty"`
	Vault    *keyvault.Policy `json:"vault,omitempty"`
}

// KeySummary describes detected keys without revealing them.
type KeySummary struct {
	Format  patterns.Format `json:"format"`
	Preview string          `json:"preview"`
	Start   int             `json:"start"`
	End     int             `json:"end"`
}

// SanitizeResponse reports what the outbound pipeline did.
type SanitizeResponse struct {
	Success           bool              `json:"success"`
	Error             string            `json:"error,omitempty"`
	Service           string            `json:"service"`
	Kind              string            `json:"kind"`
	Body              string            `json:"body"`
	Substitutions     []alias.Record    `json:"substitutions"`
	Confidence        float64           `json:"confidence"`
	Redactions        []redaction.Match `json:"redactions,omitempty"`
	RulesApplied      []string          `json:"rules_applied,omitempty"`
	Keys              []KeySummary      `json:"keys,omitempty"`
	KeysRedacted      int               `json:"keys_redacted"`
	NeedsConfirmation bool              `json:"needs_confirmation"`
	KeyFormats        []patterns.Format `json:"key_formats,omitempty"`
}

// RestoreResponse reports what the inbound pipeline did.
type RestoreResponse struct {
	Success       bool           `json:"success"`
	Error         string         `json:"error,omitempty"`
	Service       string         `json:"service"`
	Kind          string         `json:"kind"`
	Body          string         `json:"body"`
	Substitutions []alias.Record `json:"substitutions"`
	Confidence    float64        `json:"confidence"`
}

// TextRequest carries free text for the diagnostic endpoints.
type TextRequest struct {
	Text           string   `json:"text"`
	IncludeGeneric bool     `json:"include_generic,omitempty"`
	CustomPatterns []string `json:"custom_patterns,omitempty"`
}

// RuleTestRequest is the body of /v1/rules/test.
type RuleTestRequest struct {
	Rule redaction.Rule `json:"rule"`
	Text string         `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func keySummaries(keys []keyvault.DetectedKey) []KeySummary {
	if len(keys) == 0 {
		return nil
	}
	out := make([]KeySummary, len(keys))
	for i, k := range keys {
		out[i] = KeySummary{
			Format:  k.Format,
			Preview: keyvault.Preview(k.Value),
			Start:   k.StartIndex,
			End:     k.EndIndex,
		}
	}
	return out
}
