package alias

import (
	"strings"
	"unicode"
)

// Matching is case-insensitive, so the generators below only produce forms
// that differ in more than case. The input itself is never returned.

// NameVariations returns common written forms of a personal name:
// "Greg Barker" yields "GregBarker", "gbarker", "G. Barker", "greg_barker"...
func NameVariations(name string) []string {
	parts := strings.Fields(name)
	if len(parts) < 2 {
		return nil
	}

	first, last := parts[0], parts[len(parts)-1]
	initial := firstRune(first)

	set := newVariationSet(strings.Join(parts, " "))
	set.add(strings.Join(parts, ""))
	set.add(initial + last)
	set.add(initial + ". " + last)
	set.add(initial + "." + last)
	set.add(strings.Join(parts, "_"))
	set.add(strings.Join(parts, "-"))
	set.add(strings.Join(parts, "."))
	if len(parts) > 2 {
		set.add(first + " " + last)
		set.add(first + last)
	}
	return set.list()
}

// EmailVariations returns alternate spellings of the local part of an
// address. The domain is left alone.
func EmailVariations(email string) []string {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.Index(email, "@")
	if at <= 0 {
		return nil
	}
	local, domain := email[:at], email[at:]

	set := newVariationSet(email)
	set.add(strings.ReplaceAll(local, ".", "") + domain)
	if strings.Contains(local, "_") {
		set.add(strings.ReplaceAll(local, "_", ".") + domain)
	}
	if strings.Contains(local, ".") {
		set.add(strings.ReplaceAll(local, ".", "_") + domain)
	}
	return set.list()
}

// PhoneVariations returns digit groupings of a North American number.
// Forms that start with "(" or "+" are not produced: they can never sit on
// a word boundary.
func PhoneVariations(phone string) []string {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)

	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return nil
	}

	area, prefix, line := digits[:3], digits[3:6], digits[6:]
	set := newVariationSet(strings.TrimSpace(phone))
	set.add(digits)
	set.add(area + "-" + prefix + "-" + line)
	set.add(area + "." + prefix + "." + line)
	set.add(area + " " + prefix + " " + line)
	set.add("1-" + area + "-" + prefix + "-" + line)
	return set.list()
}

// WithVariations fills in RealVariations and AliasVariations for name,
// email and phone mappings that do not already carry any.
func WithVariations(m Mapping) Mapping {
	var gen func(string) []string
	switch m.PIIType {
	case PIIName:
		gen = NameVariations
	case PIIEmail:
		gen = EmailVariations
	case PIIPhone, PIICellPhone:
		gen = PhoneVariations
	default:
		return m
	}

	if len(m.RealVariations) == 0 {
		m.RealVariations = gen(m.Real)
	}
	if len(m.AliasVariations) == 0 {
		m.AliasVariations = gen(m.Alias)
	}
	return m
}

type variationSet struct {
	seen map[string]struct{}
	out  []string
}

func newVariationSet(original string) *variationSet {
	return &variationSet{seen: map[string]struct{}{strings.ToLower(original): {}}}
}

func (s *variationSet) add(v string) {
	if v == "" {
		return
	}
	key := strings.ToLower(v)
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	s.out = append(s.out, v)
}

func (s *variationSet) list() []string {
	return s.out
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}
