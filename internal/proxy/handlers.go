package proxy

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/raaihank/pii-sentinel/internal/activity"
	"github.com/raaihank/pii-sentinel/internal/adapter"
	"github.com/raaihank/pii-sentinel/internal/pipeline"
	"github.com/raaihank/pii-sentinel/internal/redaction"
	"go.uber.org/zap"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	opts := s.orch.Options()
	policy := s.orch.Policy()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":             "pii-sentinel",
		"version":          Version,
		"decode_responses": opts.DecodeResponses,
		"vault_enabled":    policy.Enabled,
		"vault_mode":       policy.EffectiveMode(),
		"status":           s.Status(),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func resolveService(req SanitizeRequest) adapter.Service {
	if req.Service != "" {
		return adapter.ParseService(req.Service)
	}
	return adapter.DetectService(req.URL)
}

func parseDecision(d string) (pipeline.Decision, bool) {
	switch pipeline.Decision(d) {
	case pipeline.DecisionNone, pipeline.DecisionRedact, pipeline.DecisionAllow:
		return pipeline.Decision(d), true
	}
	return "", false
}

// handleSanitizeRequest runs an outbound payload through the pipeline.
func (s *Server) handleSanitizeRequest(w http.ResponseWriter, r *http.Request) {
	var req SanitizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	decision, ok := parseDecision(req.Decision)
	if !ok {
		writeError(w, http.StatusBadRequest, "decision must be redact or allow")
		return
	}

	service := resolveService(req)
	log := s.logger.WithRequestID(getRequestID(r.Context())).WithService(string(service))

	res := s.orch.ProcessRequest(pipeline.Request{
		Payload:  []byte(req.Body),
		Service:  service,
		Rules:    req.Rules,
		Policy:   req.Vault,
		Decision: decision,
	})

	s.totalRequests.Add(1)
	s.totalSubstituted.Add(int64(len(res.Substitutions)))
	s.totalKeysFound.Add(int64(res.KeyCount()))

	log.Info("Request sanitized",
		zap.Bool("success", res.Success),
		zap.String("kind", res.Kind.String()),
		zap.Int("substitutions", len(res.Substitutions)),
		zap.Int("redactions", len(res.Redactions)),
		zap.Int("keys", res.KeyCount()),
		zap.Bool("needs_confirmation", res.NeedsConfirmation),
	)

	s.record(r.Context(), activity.FromRequest(service, res))

	writeJSON(w, http.StatusOK, SanitizeResponse{
		Success:           res.Success,
		Error:             res.Error,
		Service:           string(service),
		Kind:              res.Kind.String(),
		Body:              string(res.Payload),
		Substitutions:     res.Substitutions,
		Confidence:        res.Confidence,
		Redactions:        res.Redactions,
		RulesApplied:      res.RulesApplied,
		Keys:              keySummaries(res.DetectedKeys),
		KeysRedacted:      res.KeysRedacted,
		NeedsConfirmation: res.NeedsConfirmation,
		KeyFormats:        res.KeyFormats,
	})
}

// handleSanitizeResponse restores real values in an inbound payload.
func (s *Server) handleSanitizeResponse(w http.ResponseWriter, r *http.Request) {
	var req SanitizeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	service := resolveService(req)
	res := s.orch.ProcessResponse(pipeline.ResponseRequest{
		Payload: []byte(req.Body),
		Service: service,
	})

	s.logger.WithRequestID(getRequestID(r.Context())).WithService(string(service)).Info("Response restored",
		zap.Bool("success", res.Success),
		zap.Int("substitutions", len(res.Substitutions)),
	)

	s.record(r.Context(), activity.FromResponse(service, res))

	writeJSON(w, http.StatusOK, RestoreResponse{
		Success:       res.Success,
		Error:         res.Error,
		Service:       string(service),
		Kind:          res.Kind.String(),
		Body:          string(res.Payload),
		Substitutions: res.Substitutions,
		Confidence:    res.Confidence,
	})
}

// handleFindPII lists real values present in text without rewriting it.
func (s *Server) handleFindPII(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matches": s.orch.Aliases().FindPII(req.Text),
	})
}

// handleDetectKeys reports secrets in text using the loaded policy plus
// any patterns in the request.
func (s *Server) handleDetectKeys(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if !decodeBody(w, r, &req) {
		return
	}
	opts := s.orch.Policy().Options()
	opts.IncludeGeneric = opts.IncludeGeneric || req.IncludeGeneric
	opts.CustomPatterns = append(append([]string(nil), opts.CustomPatterns...), req.CustomPatterns...)

	keys := s.orch.Keys().Detect(req.Text, opts)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(keys),
		"keys":  keySummaries(keys),
	})
}

// handleRuleConflicts reports conflicts among the loaded rules.
func (s *Server) handleRuleConflicts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conflicts": redaction.DetectConflicts(s.orch.Rules()),
	})
}

// handleRuleTemplates lists predefined rules, optionally for one category.
func (s *Server) handleRuleTemplates(w http.ResponseWriter, r *http.Request) {
	var templates []redaction.Rule
	if category := r.URL.Query().Get("category"); category != "" {
		templates = redaction.TemplatesByCategory(category)
	} else {
		templates = redaction.Templates()
	}
	if templates == nil {
		templates = []redaction.Rule{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"templates": templates,
	})
}

// handleRuleTest runs one rule against sample text.
func (s *Server) handleRuleTest(w http.ResponseWriter, r *http.Request) {
	var req RuleTestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := redaction.TestRule(req.Rule, req.Text)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleActivity lists recent activity entries.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"entries": []activity.Entry{}})
		return
	}

	limit := activity.DefaultMaxEntries
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list activity", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list activity")
		return
	}
	if entries == nil {
		entries = []activity.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}
