package redaction

// DetectConflicts lists pairs of enabled rules that share a pattern or a
// priority. It is advisory only; Apply resolves both cases deterministically.
func DetectConflicts(rules []Rule) []Conflict {
	enabled := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}

	conflicts := []Conflict{}
	for i := 0; i < len(enabled); i++ {
		for j := i + 1; j < len(enabled); j++ {
			a, b := enabled[i], enabled[j]
			switch {
			case a.Pattern == b.Pattern:
				conflicts = append(conflicts, Conflict{
					RuleA:  a.Name,
					RuleB:  b.Name,
					Reason: "identical patterns; only the higher priority rule will ever match",
				})
			case a.Priority == b.Priority:
				conflicts = append(conflicts, Conflict{
					RuleA:  a.Name,
					RuleB:  b.Name,
					Reason: "same priority; the older rule runs first",
				})
			}
		}
	}
	return conflicts
}

// TestRule shows what rule would match and produce on text, ignoring its
// Enabled flag.
func TestRule(rule Rule, text string) (TestResult, error) {
	re, err := compileRule(rule)
	if err != nil {
		return TestResult{}, &CompileError{RuleID: rule.ID, RuleName: rule.Name, Err: err}
	}

	rule.Enabled = true
	if rule.ID == "" {
		rule.ID = "test"
	}

	res := TestResult{Matches: []string{}, Replacements: []string{}}
	limit := -1
	if !rule.Global {
		limit = 1
	}
	for _, loc := range re.FindAllStringSubmatchIndex(text, limit) {
		res.Matches = append(res.Matches, text[loc[0]:loc[1]])
		res.Replacements = append(res.Replacements, expand(rule.Replacement, text, loc))
	}

	res.Output = NewEngine(nil).Apply(text, []Rule{rule}).Text
	return res, nil
}
