package prompts_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/docworker/internal/prompts"
)

const sample = `### PROMPT: OCR_DEFAULT
Transcribe the text on page {page} verbatim.
Preserve line breaks.
=== END PROMPT ===

### TRANSCRIBE_DEFAULT_PROMPT
Transcribe this audio chunk faithfully.
=== END PROMPT ===
`

func TestParseString_ResolvesExactName(t *testing.T) {
	s, err := prompts.ParseString(sample)
	require.NoError(t, err)

	body, ok := s.Resolve("OCR_DEFAULT")
	require.True(t, ok)
	assert.Contains(t, body, "Transcribe the text on page {page} verbatim.")
	assert.Contains(t, body, "Preserve line breaks.")
}

func TestParseString_FallsBackToPromptSuffix(t *testing.T) {
	s, err := prompts.ParseString(sample)
	require.NoError(t, err)

	body, ok := s.Resolve("TRANSCRIBE_DEFAULT")
	require.True(t, ok)
	assert.Contains(t, body, "Transcribe this audio chunk faithfully.")
}

func TestParseString_UnknownNameNotFound(t *testing.T) {
	s, err := prompts.ParseString(sample)
	require.NoError(t, err)
	_, ok := s.Resolve("NOPE")
	assert.False(t, ok)
}

func TestResolveOCRPage_SubstitutesPlaceholders(t *testing.T) {
	s, err := prompts.ParseString(sample)
	require.NoError(t, err)

	body, ok := s.ResolveOCRPage("OCR_DEFAULT", 7)
	require.True(t, ok)
	assert.Contains(t, body, "page 7 verbatim")
}

func TestResolveOCRPage_SubstitutesUppercasePlaceholder(t *testing.T) {
	s, err := prompts.ParseString("### P\nPage number: {PAGE_NUMBER}\n=== END PROMPT ===\n")
	require.NoError(t, err)

	body, ok := s.ResolveOCRPage("P", 3)
	require.True(t, ok)
	assert.Equal(t, "Page number: 3", body)
}

func TestParseString_ShortHeaderForm(t *testing.T) {
	s, err := prompts.ParseString("### GENERAL\nSome general prompt.\n=== END PROMPT ===\n")
	require.NoError(t, err)

	body, ok := s.Resolve("GENERAL")
	require.True(t, ok)
	assert.Equal(t, "Some general prompt.", body)
}
