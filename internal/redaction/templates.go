package redaction

import (
	"time"

	"github.com/google/uuid"
)

var templates = []Rule{
	// financial
	{Name: "Social Security Number (SSN)", Pattern: `\b\d{3}-\d{2}-\d{4}\b`, Replacement: "[SSN-REDACTED]", Priority: 90, Category: "financial", Tags: []string{"ssn", "financial"}},
	{Name: "Credit Card Number", Pattern: `\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`, Replacement: "[CARD-REDACTED]", Priority: 90, Category: "financial", Tags: []string{"credit card", "financial"}},
	{Name: "Bank Account Number", Pattern: `\b\d{8,17}\b`, Replacement: "[ACCOUNT-REDACTED]", Priority: 80, Category: "financial", Tags: []string{"bank", "financial"}},
	{Name: "Routing Number", Pattern: `\b\d{9}\b`, Replacement: "[ROUTING-REDACTED]", Priority: 75, Category: "financial", Tags: []string{"routing", "financial"}},

	// medical
	{Name: "Medical Record Number (MRN)", Pattern: `\bMRN[:\s#-]?\d{6,10}\b`, Replacement: "[MRN-REDACTED]", Priority: 85, Category: "medical", Tags: []string{"mrn", "medical"}},
	{Name: "Health Insurance ID", Pattern: `\b[A-Z0-9]{8,15}\b`, Replacement: "[INSURANCE-REDACTED]", Priority: 70, CaseSensitive: true, Category: "medical", Tags: []string{"insurance", "medical"}},
	{Name: "Prescription Number (Rx)", Pattern: `\bRx[:\s#-]?\d{6,10}\b`, Replacement: "[RX-REDACTED]", Priority: 80, Category: "medical", Tags: []string{"prescription", "medical"}},

	// personal
	{Name: "Passport Number", Pattern: `\b\d{9}\b`, Replacement: "[PASSPORT-REDACTED]", Priority: 75, Category: "personal", Tags: []string{"passport", "personal"}},
	{Name: "Driver License Number", Pattern: `\bDL[:\s#-]?[A-Z0-9]{5,15}\b`, Replacement: "[DL-REDACTED]", Priority: 85, Category: "personal", Tags: []string{"license", "personal"}},
	{Name: "Date of Birth (DOB)", Pattern: `\b(0?[1-9]|1[0-2])[/-](0?[1-9]|[12]\d|3[01])[/-](19|20)\d{2}\b`, Replacement: "[DOB-REDACTED]", Priority: 80, Category: "personal", Tags: []string{"dob", "personal"}},
	{Name: "Email Address", Pattern: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`, Replacement: "[EMAIL-REDACTED]", Priority: 80, Category: "personal", Tags: []string{"email", "personal"}},
	{Name: "Phone Number", Pattern: `\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`, Replacement: "[PHONE-REDACTED]", Priority: 75, Category: "personal", Tags: []string{"phone", "personal"}},

	// corporate
	{Name: "Employee ID", Pattern: `\b(EMP|EID)[:\s#-]?\d{4,8}\b`, Replacement: "[EMP-REDACTED]", Priority: 85, Category: "corporate", Tags: []string{"employee", "corporate"}},
	{Name: "Internal Project Code", Pattern: `\bPROJ[:\s#-]?[A-Z0-9]{4,10}\b`, Replacement: "[PROJECT-REDACTED]", Priority: 75, Category: "corporate", Tags: []string{"project", "corporate"}},
	{Name: "Customer ID", Pattern: `\bCUST[:\s#-]?\d{4,10}\b`, Replacement: "[CUSTOMER-REDACTED]", Priority: 75, Category: "corporate", Tags: []string{"customer", "corporate"}},

	// custom
	{Name: "IPv4 Address", Pattern: `\b(?:\d{1,3}\.){3}\d{1,3}\b`, Replacement: "[IP-REDACTED]", Priority: 70, Category: "custom", Tags: []string{"ip", "network"}},
	{Name: "MAC Address", Pattern: `\b(?:[0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}\b`, Replacement: "[MAC-REDACTED]", Priority: 70, Category: "custom", Tags: []string{"mac", "network"}},
	{Name: "UUID/GUID", Pattern: `\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`, Replacement: "[UUID-REDACTED]", Priority: 70, Category: "custom", Tags: []string{"uuid"}},
}

// Templates returns the predefined rules. They carry no ID or creation
// time; use FromTemplate to turn one into a usable rule.
func Templates() []Rule {
	out := make([]Rule, len(templates))
	for i, t := range templates {
		t.Enabled = true
		t.Global = true
		t.Tags = append([]string(nil), t.Tags...)
		out[i] = t
	}
	return out
}

// TemplatesByCategory returns the templates in one category.
func TemplatesByCategory(category string) []Rule {
	var out []Rule
	for _, t := range Templates() {
		if t.Category == category {
			out = append(out, t)
		}
	}
	return out
}

// FromTemplate creates a new rule from the template with the given name.
func FromTemplate(name string) (Rule, bool) {
	for _, t := range Templates() {
		if t.Name == name {
			t.ID = uuid.NewString()
			t.CreatedAt = time.Now().UTC()
			return t, true
		}
	}
	return Rule{}, false
}
