package contract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validProfileJSON = `{"reasoning_depth": 3, "information_sufficiency": 0.7, "rationale": "straightforward lookup"}`

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry()
	require.NoError(t, err)
	return r
}

func TestExtract_DirectParse(t *testing.T) {
	r := newTestRegistry(t)

	out, err := r.ExtractAndValidate(IDInferProfile, validProfileJSON)
	require.NoError(t, err)

	payload, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), payload["reasoning_depth"])
}

func TestExtract_FencedBlock(t *testing.T) {
	r := newTestRegistry(t)
	response := "Here is the profile you asked for:\n```json\n" + validProfileJSON + "\n```\nLet me know if you need anything else."

	out, err := r.ExtractAndValidate(IDInferProfile, response)
	require.NoError(t, err)
	assert.Equal(t, "straightforward lookup", out.(map[string]any)["rationale"])
}

func TestExtract_BraceScanInProse(t *testing.T) {
	r := newTestRegistry(t)
	response := "After thinking about it, my answer is " + validProfileJSON + " which should cover it."

	out, err := r.ExtractAndValidate(IDInferProfile, response)
	require.NoError(t, err)
	assert.Equal(t, 0.7, out.(map[string]any)["information_sufficiency"])
}

func TestExtract_EnvelopeThenFenced(t *testing.T) {
	r := newTestRegistry(t)
	envelope := map[string]any{
		"text": "```json\n" + validProfileJSON + "\n```",
	}

	out, err := r.ExtractAndValidate(IDInferProfile, envelope)
	require.NoError(t, err)
	assert.Equal(t, float64(3), out.(map[string]any)["reasoning_depth"])
}

func TestExtract_SkipsInvalidCandidates(t *testing.T) {
	r := newTestRegistry(t)
	// The first balanced-brace candidate is not valid JSON; the second is.
	response := `{broken: yes} then ` + validProfileJSON

	out, err := r.ExtractAndValidate(IDInferProfile, response)
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestExtract_NoJSONAnywhere(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.ExtractAndValidate(IDInferProfile, "I could not produce the structure you wanted.")

	var exErr *JSONExtractionError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, IDInferProfile, exErr.ContractID)
	assert.Equal(t, []string{"envelope_text", "fenced_block", "brace_scan", "direct_parse"}, exErr.Tiers)
}

func TestExtract_EnvelopeWithoutText(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.ExtractAndValidate(IDInferProfile, map[string]any{"content": "wrong key"})

	var exErr *JSONExtractionError
	require.ErrorAs(t, err, &exErr)
}

func TestExtract_SchemaViolationIsDistinctError(t *testing.T) {
	r := newTestRegistry(t)
	response := `{"reasoning_depth": 9, "information_sufficiency": 0.7, "rationale": "too deep"}`

	_, err := r.ExtractAndValidate(IDInferProfile, response)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, IDInferProfile, vErr.ContractID)
	assert.Contains(t, vErr.Raw, "reasoning_depth")

	var exErr *JSONExtractionError
	assert.False(t, errors.As(err, &exErr), "schema violation must not be an extraction error")
}

func TestExtract_NoSchemaReturnsRawText(t *testing.T) {
	r := newTestRegistry(t)

	out, err := r.ExtractAndValidate(IDRepairJSON, `{"fixed": true}`)
	require.NoError(t, err)
	assert.Equal(t, `{"fixed": true}`, out)
}

func TestFindJSONCandidates_NestedAndEscaped(t *testing.T) {
	candidates := findJSONCandidates(`prefix {"a": {"b": "close } brace \" inside"}} suffix {"c": 1}`)
	require.Len(t, candidates, 2)
	assert.Equal(t, `{"a": {"b": "close } brace \" inside"}}`, candidates[0])
	assert.Equal(t, `{"c": 1}`, candidates[1])
}
