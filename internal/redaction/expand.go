package redaction

import "strings"

// expand renders a replacement template for one match. loc is a submatch
// index slice as returned by FindAllStringSubmatchIndex.
//
//	$&      whole match
//	$1-$99  capture group; missing or unset groups expand to ""
//	$$      literal $
//
// A two digit reference is used only when that group exists, so "$10"
// with a single group means group 1 followed by "0".
func expand(template, src string, loc []int) string {
	if !strings.Contains(template, "$") {
		return template
	}

	groups := len(loc) / 2
	group := func(n int) string {
		if n >= groups || loc[2*n] < 0 {
			return ""
		}
		return src[loc[2*n]:loc[2*n+1]]
	}

	var b strings.Builder
	for i := 0; i < len(template); i++ {
		c := template[i]
		if c != '$' || i+1 >= len(template) {
			b.WriteByte(c)
			continue
		}

		next := template[i+1]
		switch {
		case next == '$':
			b.WriteByte('$')
			i++
		case next == '&':
			b.WriteString(group(0))
			i++
		case isDigit(next) && next != '0':
			n := int(next - '0')
			consumed := 1
			if i+2 < len(template) && isDigit(template[i+2]) {
				if two := n*10 + int(template[i+2]-'0'); two < groups {
					n = two
					consumed = 2
				}
			}
			b.WriteString(group(n))
			i += consumed
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
