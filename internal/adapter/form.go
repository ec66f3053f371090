package adapter

import (
	"bytes"
	"net/url"
)

// FormRequestField is the form key that carries the request in
// batchexecute-style bodies.
const FormRequestField = "f.req"

// FormField is one decoded value inside an application/x-www-form-urlencoded
// body. Only its own bytes are replaced; every other pair is kept verbatim.
type FormField struct {
	Value string
	body  []byte
	start int
	end   int
}

// FindFormField locates name in a form-encoded body and decodes its value.
func FindFormField(body []byte, name string) (FormField, bool) {
	key := []byte(name + "=")
	offset := 0
	for offset < len(body) {
		end := bytes.IndexByte(body[offset:], '&')
		if end < 0 {
			end = len(body)
		} else {
			end += offset
		}

		pair := body[offset:end]
		if bytes.HasPrefix(pair, key) {
			raw := string(pair[len(key):])
			value, err := url.QueryUnescape(raw)
			if err != nil {
				return FormField{}, false
			}
			return FormField{
				Value: value,
				body:  body,
				start: offset + len(key),
				end:   end,
			}, true
		}
		offset = end + 1
	}
	return FormField{}, false
}

// Replace returns a copy of the body with the field set to value.
func (f FormField) Replace(value string) []byte {
	encoded := url.QueryEscape(value)
	out := make([]byte, 0, len(f.body)-(f.end-f.start)+len(encoded))
	out = append(out, f.body[:f.start]...)
	out = append(out, encoded...)
	out = append(out, f.body[f.end:]...)
	return out
}
