// Package pipeline chains the rewriting stages for one payload.
//
// Outbound: extract, alias encode, custom rules, key scan and redaction,
// reinject. Inbound: extract, alias decode, reinject. Nothing here blocks on
// I/O and every call works on its own copy of the text.
package pipeline

import (
	"bytes"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/raaihank/pii-sentinel/internal/adapter"
	"github.com/raaihank/pii-sentinel/internal/alias"
	"github.com/raaihank/pii-sentinel/internal/keyvault"
	"github.com/raaihank/pii-sentinel/internal/redaction"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Deps are the engines the orchestrator drives. Nil fields are created.
type Deps struct {
	Aliases *alias.Engine
	Rules   *redaction.Engine
	Keys    *keyvault.Detector
}

// state is the loaded rule set, policy and options, swapped as a unit.
type state struct {
	rules []redaction.Rule
	vault keyvault.Policy
	opts  Options
}

// Orchestrator runs payloads through the stages.
type Orchestrator struct {
	aliases *alias.Engine
	rules   *redaction.Engine
	keys    *keyvault.Detector
	state   atomic.Pointer[state]
	logger  *zap.Logger
}

// New creates an orchestrator with no user data loaded.
func New(deps Deps, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Aliases == nil {
		deps.Aliases = alias.NewEngine(nil, logger.Named("alias"))
	}
	if deps.Rules == nil {
		deps.Rules = redaction.NewEngine(logger.Named("redaction"))
	}
	if deps.Keys == nil {
		deps.Keys = keyvault.NewDetector(logger.Named("keyvault"))
	}

	o := &Orchestrator{
		aliases: deps.Aliases,
		rules:   deps.Rules,
		keys:    deps.Keys,
		logger:  logger,
	}
	o.state.Store(&state{opts: opts})
	return o
}

// Reload replaces the aliases, rules and policy.
func (o *Orchestrator) Reload(snap Snapshot) {
	current := o.state.Load()

	mappings := snap.Aliases
	if current.opts.GenerateVariations {
		mappings = make([]alias.Mapping, len(snap.Aliases))
		for i, m := range snap.Aliases {
			mappings[i] = alias.WithVariations(m)
		}
	}
	o.aliases.Reload(mappings)

	if err := o.rules.Compile(snap.Rules); err != nil {
		o.logger.Warn("Some redaction rules were skipped", zap.Error(err))
	}

	rules := append([]redaction.Rule(nil), snap.Rules...)
	o.state.Store(&state{rules: rules, vault: snap.Vault, opts: current.opts})

	o.logger.Info("Pipeline reloaded",
		zap.Int("aliases", len(snap.Aliases)),
		zap.Int("rules", len(snap.Rules)),
		zap.Bool("vault_enabled", snap.Vault.Enabled),
		zap.String("vault_mode", string(snap.Vault.EffectiveMode())),
	)
}

// SetOptions replaces the behaviour switches. Variations only take effect
// on the next Reload.
func (o *Orchestrator) SetOptions(opts Options) {
	current := o.state.Load()
	o.state.Store(&state{rules: current.rules, vault: current.vault, opts: opts})
}

// Options returns the current behaviour switches.
func (o *Orchestrator) Options() Options {
	return o.state.Load().opts
}

// Aliases exposes the alias engine for read-only lookups.
func (o *Orchestrator) Aliases() *alias.Engine {
	return o.aliases
}

// Rules returns the loaded rule set.
func (o *Orchestrator) Rules() []redaction.Rule {
	return append([]redaction.Rule(nil), o.state.Load().rules...)
}

// Policy returns the loaded key vault policy.
func (o *Orchestrator) Policy() keyvault.Policy {
	return o.state.Load().vault
}

// Keys exposes the key detector.
func (o *Orchestrator) Keys() *keyvault.Detector {
	return o.keys
}

// ProcessRequest rewrites an outbound payload.
func (o *Orchestrator) ProcessRequest(req Request) (res Result) {
	res = Result{
		Payload:       req.Payload,
		Success:       true,
		Substitutions: []alias.Record{},
		Confidence:    1.0,
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Recovered from panic in request pipeline",
				zap.Any("panic", r),
				zap.String("service", string(req.Service)),
				zap.ByteString("stack", debug.Stack()),
			)
			res = Result{
				Payload:       req.Payload,
				Success:       false,
				Error:         fmt.Sprintf("request pipeline: %v", r),
				Substitutions: []alias.Record{},
				Confidence:    1.0,
			}
		}
	}()

	if len(bytes.TrimSpace(req.Payload)) == 0 {
		return res
	}

	st := o.state.Load()
	rules := st.rules
	if req.Rules != nil {
		rules = req.Rules
	}
	policy := st.vault
	if req.Policy != nil {
		policy = *req.Policy
	}

	rewrite := func(text string) (string, bool) {
		return o.outbound(text, rules, policy, req.Decision, &res)
	}
	res.Payload, res.Success, res.Error = o.rewritePayload(req.Payload, req.Service, rewrite, &res.Kind)

	if res.NeedsConfirmation {
		res.Payload = req.Payload
		res.Success = true
		res.Error = ""
	}
	if !res.Success {
		res.Substitutions = []alias.Record{}
		res.Confidence = 1.0
		res.Redactions = nil
		res.RulesApplied = nil
		res.KeysRedacted = 0
	}
	return res
}

// outbound runs the outbound text stages. It reports false when the
// payload must be held back for confirmation.
func (o *Orchestrator) outbound(text string, rules []redaction.Rule, policy keyvault.Policy, decision Decision, res *Result) (string, bool) {
	encoded := o.aliases.Substitute(text, alias.Encode)
	res.Substitutions = append(res.Substitutions, encoded.Substitutions...)
	if len(res.Substitutions) > 0 {
		res.Confidence = alias.SubstitutedConfidence
	}
	text = encoded.Text

	if len(rules) > 0 {
		redacted := o.rules.Apply(text, rules)
		res.Redactions = append(res.Redactions, redacted.Matches...)
		res.RulesApplied = append(res.RulesApplied, redacted.RulesApplied...)
		text = redacted.Text
	}

	if !policy.Enabled {
		return text, true
	}

	found := o.keys.Detect(text, policy.Options())
	if len(found) == 0 {
		return text, true
	}
	res.DetectedKeys = append(res.DetectedKeys, found...)
	res.KeyFormats = keyvault.Formats(res.DetectedKeys)

	mode := policy.EffectiveMode()
	switch {
	case mode == keyvault.ModeLogOnly,
		mode == keyvault.ModeWarnFirst && decision == DecisionAllow:
		res.KeysAllowed = true
		o.logger.Warn("API keys left in outbound payload",
			zap.Int("keys", len(found)),
			zap.String("mode", string(mode)),
		)
		return text, true

	case mode == keyvault.ModeWarnFirst && decision != DecisionRedact:
		res.NeedsConfirmation = true
		return text, false
	}

	res.KeysRedacted += len(found)
	return keyvault.Redact(text, found, policy.EffectiveRedactionMode()), true
}

// ProcessResponse restores real values in an inbound payload when
// response decoding is on. Rules and key detection never run inbound.
func (o *Orchestrator) ProcessResponse(req ResponseRequest) (res ResponseResult) {
	res = ResponseResult{
		Payload:       req.Payload,
		Success:       true,
		Substitutions: []alias.Record{},
		Confidence:    1.0,
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Recovered from panic in response pipeline",
				zap.Any("panic", r),
				zap.String("service", string(req.Service)),
				zap.ByteString("stack", debug.Stack()),
			)
			res = ResponseResult{
				Payload:       req.Payload,
				Success:       false,
				Error:         fmt.Sprintf("response pipeline: %v", r),
				Substitutions: []alias.Record{},
				Confidence:    1.0,
			}
		}
	}()

	if !o.state.Load().opts.DecodeResponses || len(bytes.TrimSpace(req.Payload)) == 0 {
		return res
	}

	rewrite := func(text string) (string, bool) {
		decoded := o.aliases.Substitute(text, alias.Decode)
		res.Substitutions = append(res.Substitutions, decoded.Substitutions...)
		if len(res.Substitutions) > 0 {
			res.Confidence = alias.SubstitutedConfidence
		}
		return decoded.Text, true
	}
	res.Payload, res.Success, res.Error = o.rewritePayload(req.Payload, req.Service, rewrite, &res.Kind)
	if !res.Success {
		res.Substitutions = []alias.Record{}
		res.Confidence = 1.0
	}
	return res
}

// rewritePayload locates the text in payload, passes it through rewrite and
// puts the result back. rewrite returns false to abandon the payload, in
// which case the original is returned.
func (o *Orchestrator) rewritePayload(payload []byte, service adapter.Service, rewrite func(string) (string, bool), kind *adapter.Kind) ([]byte, bool, string) {
	if x, ok := adapter.Extract(payload, service.PreferredKind()); ok {
		*kind = x.Kind
		if x.Text == "" {
			return payload, true, ""
		}
		text, keep := rewrite(x.Text)
		if !keep {
			return payload, true, ""
		}
		out, err := x.Reinject(text)
		if err != nil {
			o.logger.Warn("Reinjection failed, returning original payload",
				zap.String("kind", x.Kind.String()),
				zap.Error(err),
			)
			return payload, false, err.Error()
		}
		return out, true, ""
	}

	if field, ok := adapter.FindFormField(payload, adapter.FormRequestField); ok {
		text, keep := rewrite(field.Value)
		if !keep {
			return payload, true, ""
		}
		return field.Replace(text), true, ""
	}

	text, keep := rewrite(string(payload))
	if !keep {
		return payload, true, ""
	}
	if gjson.ValidBytes(payload) && !gjson.Valid(text) {
		o.logger.Warn("Opaque rewrite broke JSON payload, returning original",
			zap.String("service", string(service)),
		)
		return payload, false, ErrInvalidRewrite.Error()
	}
	return []byte(text), true, ""
}
