package activity

import (
	"fmt"
	"sort"

	"github.com/raaihank/pii-sentinel/internal/adapter"
	"github.com/raaihank/pii-sentinel/internal/alias"
	"github.com/raaihank/pii-sentinel/internal/patterns"
	"github.com/raaihank/pii-sentinel/internal/pipeline"
)

// FromRequest turns an outbound pipeline result into log entries. Requests
// where nothing happened produce none.
func FromRequest(service adapter.Service, res pipeline.Result) []Entry {
	name := service.DisplayName()
	var out []Entry

	if !res.Success {
		return append(out, NewEntry(TypeError, string(service),
			fmt.Sprintf("%s: request left unchanged after error", name),
			Details{ServiceName: name, Error: res.Error}))
	}

	if n := len(res.Substitutions); n > 0 {
		out = append(out, NewEntry(TypeSubstitution, string(service),
			fmt.Sprintf("%s: %d items replaced", name, n),
			Details{
				ServiceName:       name,
				SubstitutionCount: n,
				PIITypes:          piiTypes(res.Substitutions),
				Profiles:          profiles(res.Substitutions),
			}))
	}

	if n := len(res.Redactions); n > 0 {
		out = append(out, NewEntry(TypeSubstitution, string(service),
			fmt.Sprintf("Custom Rules: %d matches redacted", n),
			Details{ServiceName: name, SubstitutionCount: n, RulesApplied: res.RulesApplied}))
	}

	keys := res.KeyCount()
	switch {
	case keys == 0:
	case res.NeedsConfirmation:
		out = append(out, NewEntry(TypeInterception, string(service),
			fmt.Sprintf("%s: %d API keys held for confirmation", name, keys),
			Details{ServiceName: name, APIKeysFound: keys, KeyTypes: formats(res.KeyFormats)}))
	case res.KeysRedacted > 0:
		out = append(out, NewEntry(TypeSubstitution, string(service),
			fmt.Sprintf("API Keys: %d keys redacted", res.KeysRedacted),
			Details{
				ServiceName:       name,
				APIKeysProtected:  res.KeysRedacted,
				KeyTypes:          formats(res.KeyFormats),
				SubstitutionCount: res.KeysRedacted,
			}))
	case res.KeysAllowed:
		out = append(out, NewEntry(TypeWarning, string(service),
			fmt.Sprintf("Warning: %d API keys found but not redacted (log-only mode)", keys),
			Details{ServiceName: name, APIKeysFound: keys, KeyTypes: formats(res.KeyFormats)}))
	}
	return out
}

// FromResponse turns an inbound pipeline result into log entries.
func FromResponse(service adapter.Service, res pipeline.ResponseResult) []Entry {
	name := service.DisplayName()
	if !res.Success {
		return []Entry{NewEntry(TypeError, string(service),
			fmt.Sprintf("%s: response left unchanged after error", name),
			Details{ServiceName: name, Error: res.Error})}
	}
	n := len(res.Substitutions)
	if n == 0 {
		return nil
	}
	return []Entry{NewEntry(TypeSubstitution, string(service),
		fmt.Sprintf("%s: %d items restored", name, n),
		Details{
			ServiceName:       name,
			SubstitutionCount: n,
			PIITypes:          piiTypes(res.Substitutions),
			Profiles:          profiles(res.Substitutions),
		})}
}

func piiTypes(records []alias.Record) []string {
	set := make(map[string]struct{})
	for _, r := range records {
		if r.PIIType != "" {
			set[string(r.PIIType)] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func profiles(records []alias.Record) []string {
	set := make(map[string]struct{})
	for _, r := range records {
		if r.ProfileID != "" {
			set[r.ProfileID] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func formats(fs []patterns.Format) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = string(f)
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
