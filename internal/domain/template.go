package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Placeholder is the sentinel value that marks a template key as a scorable
// boolean attribute.
const Placeholder = "LOGPROB_TRUE"

// quotedPlaceholder is the placeholder wrapped in JSON string quotes, used
// to make bare-placeholder templates parseable as JSON.
const quotedPlaceholder = `"` + Placeholder + `"`

// placeholderPattern matches a quoted key followed by a colon and the bare
// placeholder. Anchoring on the colon prevents placeholder occurrences inside
// string values from being treated as attributes.
var placeholderPattern = regexp.MustCompile(`"([^"]+)"\s*:\s*` + Placeholder)

// ExtractAttributes parses a criteria template into its ordered list of
// attribute names. A template is a JSON-like object whose scorable keys have
// the Placeholder sentinel (or, in already-substituted form, a JSON boolean
// true) as their value.
//
// Extraction first attempts an order-preserving JSON walk, quoting bare
// placeholders so the template parses; if the template is not valid JSON even
// then (comments, trailing commas, unquoted keys), it falls back to a regex
// scan collecting matches left to right. Key order is significant: the
// scanner relies on attributes appearing in the evaluation response in this
// exact order.
//
// Returns ErrNoAttributes when neither method finds a scorable attribute.
func ExtractAttributes(template string) ([]string, error) {
	attrs := extractViaJSON(template)

	if len(attrs) == 0 {
		for _, match := range placeholderPattern.FindAllStringSubmatch(template, -1) {
			attrs = append(attrs, match[1])
		}
	}

	if len(attrs) == 0 {
		return nil, fmt.Errorf("template %q: %w", truncate(template, 80), ErrNoAttributes)
	}
	return attrs, nil
}

// extractViaJSON attempts to read the template as a JSON object, preserving
// key order. It accepts both the raw-placeholder form (after quoting the
// sentinel) and the substituted form where placeholders have become booleans.
// Returns nil when the template is not a JSON object either way.
func extractViaJSON(template string) []string {
	pairs, err := orderedObjectPairs(template)
	if err != nil {
		substituted := strings.ReplaceAll(template, Placeholder, quotedPlaceholder)
		pairs, err = orderedObjectPairs(substituted)
		if err != nil {
			return nil
		}
	}

	var placeholderKeys, booleanKeys []string
	for _, p := range pairs {
		value := bytes.TrimSpace(p.value)
		switch {
		case bytes.Equal(value, []byte(quotedPlaceholder)):
			placeholderKeys = append(placeholderKeys, p.key)
		case bytes.Equal(value, []byte("true")):
			booleanKeys = append(booleanKeys, p.key)
		}
	}

	// Explicit placeholders win; boolean-true keys are only trusted as the
	// substituted form when the template carries no placeholders at all.
	if len(placeholderKeys) > 0 {
		return placeholderKeys
	}
	return booleanKeys
}

// objectPair is one key/value pair of a JSON object, with the raw value
// bytes preserved for inspection.
type objectPair struct {
	key   string
	value json.RawMessage
}

// orderedObjectPairs decodes a JSON object while preserving the textual
// order of its keys, which encoding/json's map decoding discards.
func orderedObjectPairs(s string) ([]objectPair, error) {
	dec := json.NewDecoder(strings.NewReader(s))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("template is not a JSON object")
	}

	var pairs []objectPair
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key token %v", keyTok)
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		pairs = append(pairs, objectPair{key: key, value: value})
	}

	// Consume the closing brace and require EOF so trailing garbage does
	// not masquerade as a valid template.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after template object")
	}

	return pairs, nil
}

// truncate shortens s for inclusion in error messages.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
