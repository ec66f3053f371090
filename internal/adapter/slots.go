package adapter

import (
	"strconv"

	"github.com/tidwall/gjson"
)

func nonEmptyString(r gjson.Result) bool {
	return r.Type == gjson.String && r.Str != ""
}

func eventSlots(root gjson.Result) ([]string, bool) {
	if root.Get("event").String() != "send" || !root.Get("content").IsArray() {
		return nil, false
	}

	var paths []string
	for i, item := range root.Get("content").Array() {
		if item.Get("type").String() == "text" && nonEmptyString(item.Get("text")) {
			paths = append(paths, "content."+strconv.Itoa(i)+".text")
		}
	}
	// Events without text fall through to the other layouts.
	return paths, len(paths) > 0
}

func dualFieldSlots(root gjson.Result) ([]string, bool) {
	if !nonEmptyString(root.Get("query_str")) {
		return nil, false
	}
	paths := []string{"query_str"}
	if nonEmptyString(root.Get("params.dsl_query")) {
		paths = append(paths, "params.dsl_query")
	}
	return paths, true
}

func querySlots(root gjson.Result) ([]string, bool) {
	if !nonEmptyString(root.Get("query")) {
		return nil, false
	}
	return []string{"query"}, true
}

func chatSlots(root gjson.Result) ([]string, bool) {
	messages := root.Get("messages")
	if !messages.IsArray() {
		return nil, false
	}

	var paths []string
	for i, msg := range messages.Array() {
		if !msg.IsObject() {
			continue
		}
		base := "messages." + strconv.Itoa(i) + ".content"
		content := msg.Get("content")

		switch {
		case nonEmptyString(content):
			paths = append(paths, base)

		case content.IsArray():
			for j, item := range content.Array() {
				p := base + "." + strconv.Itoa(j)
				if nonEmptyString(item) {
					paths = append(paths, p)
				} else if item.IsObject() && nonEmptyString(item.Get("text")) {
					paths = append(paths, p+".text")
				}
			}

		case content.IsObject() && content.Get("parts").IsArray():
			for k, part := range content.Get("parts").Array() {
				if nonEmptyString(part) {
					paths = append(paths, base+".parts."+strconv.Itoa(k))
				}
			}
		}
	}
	return paths, true
}

func promptSlots(root gjson.Result) ([]string, bool) {
	if !nonEmptyString(root.Get("prompt")) {
		return nil, false
	}
	return []string{"prompt"}, true
}

func partsSlots(root gjson.Result) ([]string, bool) {
	contents := root.Get("contents")
	if !contents.IsArray() {
		return nil, false
	}

	var paths []string
	for i, c := range contents.Array() {
		if !c.IsObject() || !c.Get("parts").IsArray() {
			continue
		}
		for j, part := range c.Get("parts").Array() {
			if part.IsObject() && nonEmptyString(part.Get("text")) {
				paths = append(paths, "contents."+strconv.Itoa(i)+".parts."+strconv.Itoa(j)+".text")
			}
		}
	}
	return paths, true
}
