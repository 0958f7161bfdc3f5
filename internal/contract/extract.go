package contract

import (
	"encoding/json"
	"strings"
)

// Tier names, in pipeline order. The attempted list in a JSONExtractionError
// always carries all four so callers can log the full pipeline.
const (
	tierEnvelope    = "envelope_text"
	tierFencedBlock = "fenced_block"
	tierBraceScan   = "brace_scan"
	tierDirectParse = "direct_parse"
)

func allTiers() []string {
	return []string{tierEnvelope, tierFencedBlock, tierBraceScan, tierDirectParse}
}

// ExtractAndValidate digs a JSON payload out of an oracle response and checks
// it against the contract's output schema. The response is either a raw
// string or a structured envelope carrying a text field; extraction walks an
// ordered pipeline over the working text:
//
//  1. envelope_text: unwrap the envelope's text field
//  2. fenced_block:  first ```json (or bare ```) fenced block
//  3. brace_scan:    balanced-brace scan for a top-level object
//  4. direct_parse:  parse the entire working text as-is
//
// Contracts with no output schema return the working text unmodified. On
// success the decoded payload is returned as a map[string]any.
func (r *Registry) ExtractAndValidate(id ID, response any) (any, error) {
	c, ok := r.contracts[id]
	if !ok {
		return nil, &RenderingError{ContractID: id, Msg: "unknown contract"}
	}

	text, err := unwrapEnvelope(id, response)
	if err != nil {
		return nil, err
	}

	if c.Output == nil {
		return text, nil
	}

	raw, ok := extractJSON(text)
	if !ok {
		return nil, &JSONExtractionError{ContractID: id, Tiers: allTiers(), Raw: text}
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, &JSONExtractionError{ContractID: id, Tiers: allTiers(), Raw: text}
	}

	if err := c.resolved.Validate(payload); err != nil {
		return nil, &ValidationError{ContractID: id, Raw: raw, Err: err}
	}
	return payload, nil
}

// unwrapEnvelope resolves the working text. Structured envelopes must carry a
// string text field; anything else is an extraction failure at the first tier.
func unwrapEnvelope(id ID, response any) (string, error) {
	switch t := response.(type) {
	case string:
		return t, nil
	case map[string]any:
		text, ok := t["text"].(string)
		if !ok {
			return "", &JSONExtractionError{ContractID: id, Tiers: allTiers(), Raw: ""}
		}
		return text, nil
	default:
		return "", &JSONExtractionError{ContractID: id, Tiers: allTiers(), Raw: ""}
	}
}

// extractJSON runs the remaining tiers over the working text and returns the
// first candidate that parses as a JSON object.
func extractJSON(text string) (string, bool) {
	if block, ok := fencedBlock(text); ok {
		if candidate, ok := firstParseable(block); ok {
			return candidate, true
		}
	}
	if candidate, ok := firstParseable(text); ok {
		return candidate, true
	}
	trimmed := strings.TrimSpace(text)
	if json.Valid([]byte(trimmed)) && strings.HasPrefix(trimmed, "{") {
		return trimmed, true
	}
	return "", false
}

// fencedBlock returns the body of the first markdown code fence, preferring a
// ```json fence over a bare one.
func fencedBlock(text string) (string, bool) {
	for _, marker := range []string{"```json", "```"} {
		start := strings.Index(text, marker)
		if start == -1 {
			continue
		}
		body := text[start+len(marker):]
		end := strings.Index(body, "```")
		if end == -1 {
			continue
		}
		return strings.TrimSpace(body[:end]), true
	}
	return "", false
}

// firstParseable brace-scans the text and returns the first candidate object
// that survives a real parse.
func firstParseable(text string) (string, bool) {
	for _, candidate := range findJSONCandidates(text) {
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	return "", false
}

// findJSONCandidates scans the input for top-level JSON object candidates
// using a byte-level state machine, tracking brace depth while skipping
// string contents and escape sequences.
//
// Iterating bytes is safe for ASCII delimiters ({, }, ", \) because UTF-8
// guarantees ASCII bytes never appear inside a multi-byte sequence.
func findJSONCandidates(s string) []string {
	var candidates []string
	var depth int
	start := -1
	var inString, escape bool

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}
		if inString {
			if b == '\\' {
				escape = true
			} else if b == '"' {
				inString = false
			}
			continue
		}
		if b == '"' {
			inString = true
			continue
		}

		switch b {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					candidates = append(candidates, s[start:i+1])
					start = -1
				}
			}
		}
	}
	return candidates
}
