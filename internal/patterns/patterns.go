// Package patterns holds the library of secret-token shapes used by the key
// detector. Vendor patterns are highly structured and cheap to run; the
// generic pattern is broad and noisy, so callers must opt in to it.
package patterns

import "regexp"

// Format identifies the kind of secret a pattern detects.
type Format string

const (
	FormatOpenAI      Format = "openai"
	FormatAnthropic   Format = "anthropic"
	FormatGoogle      Format = "google"
	FormatAWS         Format = "aws"
	FormatGitHub      Format = "github"
	FormatStripe      Format = "stripe"
	FormatSlack       Format = "slack"
	FormatHuggingFace Format = "huggingface"
	FormatGeneric     Format = "generic"
	FormatCustom      Format = "custom"
)

// Pattern pairs a format with its compiled expression.
type Pattern struct {
	Format Format
	Regexp *regexp.Regexp
}

// vendor is ordered: the first pattern that matches a value decides its format.
var vendor = []Pattern{
	{FormatOpenAI, regexp.MustCompile(`sk-(?:proj-)?[A-Za-z0-9]{48,}`)},
	{FormatAnthropic, regexp.MustCompile(`sk-ant-[A-Za-z0-9-]{95}`)},
	{FormatGoogle, regexp.MustCompile(`AIza[A-Za-z0-9_-]{35}`)},
	{FormatAWS, regexp.MustCompile(`(?:AKIA|ASIA)[A-Z0-9]{16}`)},
	{FormatGitHub, regexp.MustCompile(`gh[ps]_[A-Za-z0-9]{36}`)},
	{FormatStripe, regexp.MustCompile(`(?:sk|pk)_(?:live|test)_[A-Za-z0-9]{24,}`)},
	{FormatSlack, regexp.MustCompile(`xox[baprs]-[0-9A-Za-z-]{10,}`)},
	{FormatHuggingFace, regexp.MustCompile(`hf_[A-Za-z0-9]{34,}`)},
}

// generic matches long hex or base64-looking runs.
var generic = Pattern{
	Format: FormatGeneric,
	Regexp: regexp.MustCompile(`\b[A-Fa-f0-9]{32,}\b|\b[A-Za-z0-9+/]{40,}={0,2}`),
}

// Vendor returns the vendor-specific patterns in precedence order.
// The returned slice is a copy; compiled expressions are shared and safe for
// concurrent use.
func Vendor() []Pattern {
	out := make([]Pattern, len(vendor))
	copy(out, vendor)
	return out
}

// Generic returns the low-confidence generic pattern.
func Generic() Pattern {
	return generic
}

// All returns the vendor patterns followed by the generic one.
func All() []Pattern {
	return append(Vendor(), generic)
}

// Lookup returns the pattern registered for a format.
func Lookup(format Format) (Pattern, bool) {
	for _, p := range vendor {
		if p.Format == format {
			return p, true
		}
	}
	if format == FormatGeneric {
		return generic, true
	}
	return Pattern{}, false
}
