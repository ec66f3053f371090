// Package source builds pipeline snapshots from configuration and keeps
// them current from a shared Redis copy.
package source

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/raaihank/pii-sentinel/internal/config"
	"github.com/raaihank/pii-sentinel/internal/pipeline"
	"github.com/raaihank/pii-sentinel/internal/redaction"
	"go.uber.org/multierr"
)

// Reloader accepts a new snapshot. *pipeline.Orchestrator implements it.
type Reloader interface {
	Reload(pipeline.Snapshot)
}

// FromConfig builds a snapshot from the loaded configuration. Unknown
// template names are reported but do not stop the rest of the snapshot.
func FromConfig(cfg *config.Config) (pipeline.Snapshot, error) {
	snap := pipeline.Snapshot{
		Aliases: append(cfg.Aliases.Mappings[:0:0], cfg.Aliases.Mappings...),
		Vault:   cfg.Vault,
	}

	if !cfg.CustomRules.Enabled {
		return snap, nil
	}

	snap.Rules = append(snap.Rules, cfg.CustomRules.Items...)
	rules, err := ResolveTemplates(cfg.CustomRules.Templates)
	snap.Rules = append(snap.Rules, rules...)
	return snap, err
}

// Options maps configuration switches onto pipeline options.
func Options(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		DecodeResponses:    cfg.Pipeline.DecodeResponses,
		GenerateVariations: cfg.Aliases.GenerateVariations,
	}
}

// ResolveTemplates expands template references. A reference matches a
// template's name or first tag, or a whole category. Resolved rules get
// an id derived from the template name so it is stable across reloads.
func ResolveTemplates(refs []string) ([]redaction.Rule, error) {
	var (
		out  []redaction.Rule
		errs error
		seen = make(map[string]bool)
	)
	add := func(r redaction.Rule) {
		if seen[r.Name] {
			return
		}
		seen[r.Name] = true
		r.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("pii-sentinel/template/"+r.Name)).String()
		out = append(out, r)
	}

	for _, ref := range refs {
		key := strings.ToLower(strings.TrimSpace(ref))
		if key == "" {
			continue
		}
		var matched bool
		for _, t := range redaction.Templates() {
			if strings.ToLower(t.Name) == key || (len(t.Tags) > 0 && t.Tags[0] == key) || t.Category == key {
				add(t)
				matched = true
			}
		}
		if !matched {
			errs = multierr.Append(errs, fmt.Errorf("unknown rule template %q", ref))
		}
	}
	return out, errs
}

// ParseSnapshot decodes the JSON form of a snapshot.
func ParseSnapshot(data []byte) (pipeline.Snapshot, error) {
	var snap pipeline.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return pipeline.Snapshot{}, fmt.Errorf("invalid snapshot JSON: %w", err)
	}
	return snap, nil
}
