// Package payload extracts fields from loosely structured event payloads.
package payload

import (
	"strconv"
	"strings"
)

// Resolve walks tree along each candidate in the pipe-delimited path list and
// returns the first value found that is neither nil nor an empty string.
// A candidate is a dotted path of object keys; numeric segments also index
// into arrays. Missing keys and non-object intermediates make the candidate
// yield nothing. Resolve returns nil when no candidate yields a value.
func Resolve(tree any, path string) any {
	for _, candidate := range strings.Split(path, "|") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		v, ok := walk(tree, candidate)
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			continue
		}
		return v
	}
	return nil
}

// Has reports whether any candidate in path resolves to a value.
func Has(tree any, path string) bool {
	return Resolve(tree, path) != nil
}

func walk(tree any, dotted string) (any, bool) {
	cur := tree
	for _, seg := range strings.Split(dotted, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Unwrap normalizes the three accepted envelope shapes into the event object.
// An array is replaced by its first element (automation tools deliver events
// as single-element lists) and an object with a "body" key is replaced by that
// key's value. The shapes compose, so [{"body":{...}}] unwraps twice.
//
// Unwrap returns the event together with the envelope after array unwrapping,
// which is what callers keep as the raw provenance payload.
func Unwrap(body any) (event any, envelope any) {
	envelope = body
	if list, ok := body.([]any); ok {
		if len(list) == 0 {
			return nil, nil
		}
		envelope = list[0]
	}
	event = envelope
	if obj, ok := envelope.(map[string]any); ok {
		if inner, has := obj["body"]; has && inner != nil {
			event = inner
		}
	}
	return event, envelope
}
