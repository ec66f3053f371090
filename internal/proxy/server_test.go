package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/raaihank/pii-sentinel/internal/activity"
	"github.com/raaihank/pii-sentinel/internal/alias"
	"github.com/raaihank/pii-sentinel/internal/config"
	"github.com/raaihank/pii-sentinel/internal/keyvault"
	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/pipeline"
	"github.com/raaihank/pii-sentinel/internal/redaction"
	"go.uber.org/zap"
)

var openAIKey = "sk-" + strings.Repeat("a", 48)

type testServer struct {
	*Server
	memory *activity.MemoryLog
}

func newTestServer(t *testing.T, mutate func(*config.Config), snap pipeline.Snapshot, opts pipeline.Options) testServer {
	t.Helper()
	cfg := config.GetDefaults()
	cfg.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	orch := pipeline.New(pipeline.Deps{}, opts, zap.NewNop())
	orch.Reload(snap)
	memory := activity.NewMemoryLog(10)

	srv, err := New(cfg, &logger.Logger{Logger: zap.NewNop()}, Deps{
		Orchestrator: orch,
		Recorder:     memory,
		History:      memory,
	})
	if err != nil {
		t.Fatal(err)
	}
	return testServer{Server: srv, memory: memory}
}

func (ts testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func joeSmith() pipeline.Snapshot {
	return pipeline.Snapshot{Aliases: []alias.Mapping{{Real: "Joe Smith", Alias: "Alex Carter", PIIType: alias.PIIName, Enabled: true}}}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil, pipeline.Snapshot{}, pipeline.Options{})
	rec := ts.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("health = %d %s", rec.Code, rec.Body)
	}
}

func TestSanitizeRequest(t *testing.T) {
	ts := newTestServer(t, nil, joeSmith(), pipeline.Options{})

	rec := ts.do(t, http.MethodPost, "/v1/sanitize/request", SanitizeRequest{
		URL:  "https://chatgpt.com/backend-api/conversation",
		Body: `{"messages":[{"role":"user","content":"My name is Joe Smith"}]}`,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request id header")
	}

	var resp SanitizeResponse
	decode(t, rec, &resp)
	if resp.Body != `{"messages":[{"role":"user","content":"My name is Alex Carter"}]}` {
		t.Errorf("body = %s", resp.Body)
	}
	if resp.Service != "chatgpt" || resp.Kind != "chat" || len(resp.Substitutions) != 1 {
		t.Errorf("unexpected response %+v", resp)
	}

	entries, _ := ts.memory.Recent(context.Background(), 0)
	if len(entries) != 1 || entries[0].Message != "ChatGPT: 1 items replaced" {
		t.Errorf("activity = %+v", entries)
	}
}

func TestSanitizeRequestWarnFirst(t *testing.T) {
	snap := pipeline.Snapshot{Vault: keyvault.Policy{Enabled: true, Mode: keyvault.ModeWarnFirst}}
	ts := newTestServer(t, nil, snap, pipeline.Options{})
	body := `{"prompt":"key ` + openAIKey + `"}`

	var held SanitizeResponse
	decode(t, ts.do(t, http.MethodPost, "/v1/sanitize/request", SanitizeRequest{Service: "claude", Body: body}), &held)
	if !held.NeedsConfirmation || held.Body != body || len(held.Keys) != 1 {
		t.Fatalf("unexpected response %+v", held)
	}
	if strings.Contains(held.Keys[0].Preview, openAIKey) {
		t.Error("key preview leaks the key")
	}

	var redacted SanitizeResponse
	decode(t, ts.do(t, http.MethodPost, "/v1/sanitize/request", SanitizeRequest{Service: "claude", Body: body, Decision: "redact"}), &redacted)
	if redacted.NeedsConfirmation || redacted.Body != `{"prompt":"key [OPENAI_KEY]"}` {
		t.Errorf("unexpected response %+v", redacted)
	}
}

func TestSanitizeRequestBadInput(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.Server.MaxBodyBytes = 64 }, pipeline.Snapshot{}, pipeline.Options{})

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"broken json", "{", http.StatusBadRequest},
		{"bad decision", SanitizeRequest{Body: "x", Decision: "maybe"}, http.StatusBadRequest},
		{"too large", SanitizeRequest{Body: strings.Repeat("x", 100)}, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := ts.do(t, http.MethodPost, "/v1/sanitize/request", tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestSanitizeResponse(t *testing.T) {
	ts := newTestServer(t, nil, joeSmith(), pipeline.Options{DecodeResponses: true})

	var resp RestoreResponse
	decode(t, ts.do(t, http.MethodPost, "/v1/sanitize/response", SanitizeRequest{Body: "Thanks, Alex Carter!"}), &resp)
	if resp.Body != "Thanks, Joe Smith!" || len(resp.Substitutions) != 1 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestFindPIIAndDetectKeys(t *testing.T) {
	ts := newTestServer(t, nil, joeSmith(), pipeline.Options{})

	var pii struct {
		Matches []alias.Match `json:"matches"`
	}
	decode(t, ts.do(t, http.MethodPost, "/v1/pii/find", TextRequest{Text: "ask Joe Smith"}), &pii)
	if len(pii.Matches) != 1 || pii.Matches[0].Start != 4 {
		t.Errorf("matches = %+v", pii.Matches)
	}

	var keys struct {
		Count int          `json:"count"`
		Keys  []KeySummary `json:"keys"`
	}
	rec := ts.do(t, http.MethodPost, "/v1/keys/detect", TextRequest{Text: "use " + openAIKey, CustomPatterns: []string{`ACME-\d+`}})
	decode(t, rec, &keys)
	if keys.Count != 1 || keys.Keys[0].Format != "openai" {
		t.Errorf("keys = %+v", keys)
	}
	if strings.Contains(rec.Body.String(), openAIKey) {
		t.Error("response leaks the key")
	}
}

func TestRuleEndpoints(t *testing.T) {
	rules := []redaction.Rule{
		{ID: "a", Name: "A", Pattern: `\d+`, Priority: 1, Enabled: true},
		{ID: "b", Name: "B", Pattern: `\d+`, Priority: 1, Enabled: true},
	}
	ts := newTestServer(t, nil, pipeline.Snapshot{Rules: rules}, pipeline.Options{})

	var conflicts struct {
		Conflicts []redaction.Conflict `json:"conflicts"`
	}
	decode(t, ts.do(t, http.MethodGet, "/v1/rules/conflicts", nil), &conflicts)
	if len(conflicts.Conflicts) != 1 {
		t.Errorf("conflicts = %+v", conflicts.Conflicts)
	}

	var templates struct {
		Templates []redaction.Rule `json:"templates"`
	}
	decode(t, ts.do(t, http.MethodGet, "/v1/rules/templates?category=medical", nil), &templates)
	if len(templates.Templates) != 3 {
		t.Errorf("medical templates = %d", len(templates.Templates))
	}

	var result redaction.TestResult
	rec := ts.do(t, http.MethodPost, "/v1/rules/test", RuleTestRequest{
		Rule: redaction.Rule{Pattern: `(\d{3})-\d{4}`, Replacement: "$1-XXXX", Global: true},
		Text: "call 555-1234",
	})
	decode(t, rec, &result)
	if result.Output != "call 555-XXXX" {
		t.Errorf("output = %q", result.Output)
	}

	if rec := ts.do(t, http.MethodPost, "/v1/rules/test", RuleTestRequest{Rule: redaction.Rule{Pattern: "("}}); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid pattern status = %d", rec.Code)
	}
}

func TestActivityEndpoint(t *testing.T) {
	ts := newTestServer(t, nil, joeSmith(), pipeline.Options{})
	for i := 0; i < 3; i++ {
		ts.do(t, http.MethodPost, "/v1/sanitize/request", SanitizeRequest{Body: `{"prompt":"Joe Smith"}`})
	}

	var resp struct {
		Entries []activity.Entry `json:"entries"`
	}
	decode(t, ts.do(t, http.MethodGet, "/v1/activity?limit=2", nil), &resp)
	if len(resp.Entries) != 2 {
		t.Errorf("entries = %d", len(resp.Entries))
	}

	if rec := ts.do(t, http.MethodGet, "/v1/activity?limit=x", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 2}
	}, pipeline.Snapshot{}, pipeline.Options{})

	var codes []int
	for i := 0; i < 3; i++ {
		codes = append(codes, ts.do(t, http.MethodGet, "/v1/rules/templates", nil).Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}

	if rec := ts.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("health should not be rate limited, got %d", rec.Code)
	}
}

func TestClientLimiterCleanup(t *testing.T) {
	l := newClientLimiter(1, 1)
	l.Allow("a")
	l.Allow("b")
	if n := l.cleanup(-1); n != 2 {
		t.Errorf("removed %d", n)
	}
}
