package inference

import (
	"encoding/json"
	"fmt"
	"strings"
)

// candidateSpan returns the text from the first '{' to the last '}' inclusive.
// Models tend to wrap JSON in prose, so this is the main recovery step.
func candidateSpan(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

var repairer = strings.NewReplacer(
	"\r\n", " ",
	"\n", " ",
	"\r", " ",
	"'", `"`,
)

// repairJSON swaps single quotes for double quotes and collapses line breaks.
// It is a heuristic: apostrophes inside string values get mangled too.
func repairJSON(s string) string {
	return repairer.Replace(s)
}

// decodeCandidate parses span, retrying once on the repaired text.
// It returns the bytes that parsed so they can be schema-validated as-is.
func decodeCandidate(span string) (raw []byte, doc any, repaired bool, err error) {
	if err := json.Unmarshal([]byte(span), &doc); err == nil {
		return []byte(span), doc, false, nil
	}

	fixed := repairJSON(span)
	doc = nil
	if err := json.Unmarshal([]byte(fixed), &doc); err != nil {
		return nil, nil, false, fmt.Errorf("parse candidate JSON after repair: %w", err)
	}
	return []byte(fixed), doc, true, nil
}
