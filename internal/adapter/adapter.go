// Package adapter locates the free text inside chat-service payloads and
// writes rewritten text back without disturbing anything else.
//
// Each Kind knows which JSON paths ("slots") carry user text. Extraction
// joins the slot values with Separator into one blob; Reinject splits the
// rewritten blob and patches each slot in place with sjson, so role labels,
// attachment metadata and unknown fields keep their original bytes.
package adapter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Separator joins slot values in an extracted blob. Paragraph breaks inside
// a message are two newlines, so three keeps messages apart.
const Separator = "\n\n\n"

// ErrNotClaimed is returned when no adapter recognises a payload.
var ErrNotClaimed = errors.New("payload not claimed by any adapter")

// Kind identifies one payload layout.
type Kind int

const (
	KindNone Kind = iota
	// KindEvent is {"event":"send","content":[{"type":"text","text":...}]}.
	KindEvent
	// KindDualField is {"query_str":...,"params":{"dsl_query":...}}.
	KindDualField
	// KindQuery is {"query":...}.
	KindQuery
	// KindChat is {"messages":[{"content":...}]}.
	KindChat
	// KindPrompt is {"prompt":...}.
	KindPrompt
	// KindParts is {"contents":[{"parts":[{"text":...}]}]}.
	KindParts
)

var kindNames = map[Kind]string{
	KindNone:      "none",
	KindEvent:     "event",
	KindDualField: "dual_field",
	KindQuery:     "query",
	KindChat:      "chat",
	KindPrompt:    "prompt",
	KindParts:     "parts",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// priority is the fixed order adapters are tried in.
var priority = []Kind{KindEvent, KindDualField, KindQuery, KindChat, KindPrompt, KindParts}

// slotFinders return the slot paths a kind claims, or ok=false when the
// payload does not have that layout.
var slotFinders = map[Kind]func(root gjson.Result) (paths []string, ok bool){
	KindEvent:     eventSlots,
	KindDualField: dualFieldSlots,
	KindQuery:     querySlots,
	KindChat:      chatSlots,
	KindPrompt:    promptSlots,
	KindParts:     partsSlots,
}

// slot is one JSON path holding user text.
type slot struct {
	path     string
	original string
	// fragments is how many Separator-delimited parts the value spans.
	fragments int
}

// Extraction is the text pulled from a payload plus what is needed to put
// rewritten text back.
type Extraction struct {
	Kind    Kind
	Text    string
	payload []byte
	slots   []slot
}

// Slots returns the number of text slots found.
func (x Extraction) Slots() int {
	return len(x.slots)
}

// Extract finds the first adapter that claims payload. The preferred kind,
// when set, is tried before the fixed priority order.
func Extract(payload []byte, preferred Kind) (Extraction, bool) {
	if !gjson.ValidBytes(payload) {
		return Extraction{}, false
	}
	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return Extraction{}, false
	}

	order := priority
	if preferred != KindNone {
		order = append([]Kind{preferred}, priority...)
	}

	for _, kind := range order {
		find, ok := slotFinders[kind]
		if !ok {
			continue
		}
		paths, claimed := find(root)
		if !claimed {
			continue
		}
		return newExtraction(kind, payload, root, paths), true
	}
	return Extraction{}, false
}

// DetectKind reports which adapter claims payload.
func DetectKind(payload []byte) Kind {
	x, ok := Extract(payload, KindNone)
	if !ok {
		return KindNone
	}
	return x.Kind
}

func newExtraction(kind Kind, payload []byte, root gjson.Result, paths []string) Extraction {
	x := Extraction{Kind: kind, payload: payload}
	values := make([]string, 0, len(paths))
	for _, p := range paths {
		v := root.Get(p).String()
		x.slots = append(x.slots, slot{
			path:      p,
			original:  v,
			fragments: strings.Count(v, Separator) + 1,
		})
		values = append(values, v)
	}
	x.Text = strings.Join(values, Separator)
	return x
}

// Reinject writes rewritten back into the slots of a copy of the original
// payload. When the number of parts no longer lines up with the slots,
// each slot takes the part at its index, falling back to the last part;
// an empty rewrite leaves every slot as it was.
func (x Extraction) Reinject(rewritten string) ([]byte, error) {
	out := make([]byte, len(x.payload))
	copy(out, x.payload)
	if len(x.slots) == 0 || rewritten == "" {
		return out, nil
	}

	values := x.distribute(strings.Split(rewritten, Separator))

	var err error
	for i, s := range x.slots {
		if values[i] == s.original {
			continue
		}
		out, err = sjson.SetBytes(out, s.path, values[i])
		if err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", s.path, err)
		}
	}
	return out, nil
}

func (x Extraction) distribute(parts []string) []string {
	values := make([]string, len(x.slots))

	expected := 0
	for _, s := range x.slots {
		expected += s.fragments
	}

	if expected == len(parts) {
		next := 0
		for i, s := range x.slots {
			values[i] = strings.Join(parts[next:next+s.fragments], Separator)
			next += s.fragments
		}
		return values
	}

	for i := range x.slots {
		if i < len(parts) {
			values[i] = parts[i]
		} else {
			values[i] = parts[len(parts)-1]
		}
	}
	return values
}
