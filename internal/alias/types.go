package alias

// Direction selects which lookup table a substitution uses.
type Direction int

const (
	// Encode rewrites real values to their aliases (outbound).
	Encode Direction = iota
	// Decode rewrites aliases back to real values (inbound).
	Decode
)

func (d Direction) String() string {
	if d == Decode {
		return "decode"
	}
	return "encode"
}

// PIIType classifies the personal data a mapping protects.
type PIIType string

const (
	PIIName      PIIType = "name"
	PIIEmail     PIIType = "email"
	PIIPhone     PIIType = "phone"
	PIICellPhone PIIType = "cellPhone"
	PIIAddress   PIIType = "address"
	PIICompany   PIIType = "company"
	PIICustom    PIIType = "custom"
)

// Mapping is one real-value/stand-in pair.
type Mapping struct {
	Real            string   `json:"real" mapstructure:"real"`
	Alias           string   `json:"alias" mapstructure:"alias"`
	PIIType         PIIType  `json:"piiType" mapstructure:"pii_type"`
	Enabled         bool     `json:"enabled" mapstructure:"enabled"`
	ProfileID       string   `json:"profileId,omitempty" mapstructure:"profile_id"`
	ProfileName     string   `json:"profileName,omitempty" mapstructure:"profile_name"`
	RealVariations  []string `json:"realVariations,omitempty" mapstructure:"real_variations"`
	AliasVariations []string `json:"aliasVariations,omitempty" mapstructure:"alias_variations"`
}

// Record describes one rewrite performed by Substitute.
// Position is a byte offset into the working text at the time of the rewrite.
type Record struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Position  int     `json:"position"`
	PIIType   PIIType `json:"piiType,omitempty"`
	ProfileID string  `json:"profileId,omitempty"`
}

// Result is the outcome of a substitution pass.
type Result struct {
	Text          string   `json:"text"`
	Substitutions []Record `json:"substitutions"`
	// Confidence is a coarse signal: 1.0 when nothing was rewritten,
	// SubstitutedConfidence otherwise. It is not a statistical measure.
	Confidence float64 `json:"confidence"`
}

// Match is a real value found by FindPII.
type Match struct {
	Text        string  `json:"text"`
	Start       int     `json:"start"`
	End         int     `json:"end"`
	Alias       string  `json:"alias"`
	PIIType     PIIType `json:"piiType"`
	ProfileID   string  `json:"profileId,omitempty"`
	ProfileName string  `json:"profileName,omitempty"`
}

// SubstitutedConfidence is reported whenever at least one rewrite happened.
const SubstitutedConfidence = 0.9
