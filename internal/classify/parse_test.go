package classify

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMultiplicity(t *testing.T) {
	tests := []struct {
		text string
		want Multiplicity
		kind Kind
	}{
		{"SINGLE", Single, 0},
		{"  single.\n", Single, 0},
		{"MULTIPLE", Multiple, 0},
		{"None", None, 0},
		{"\"MULTIPLE\"", Multiple, 0},
		{"", "", KindEmptyResponse},
		{"two watches", "", KindInvalidResponse},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := ParseMultiplicity(tt.text)
			if tt.want == "" {
				require.Error(t, err)
				assert.Equal(t, tt.kind, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAttributes_Complete(t *testing.T) {
	text := `Here is the analysis:
CASE_SHAPE: Round
CASE_COLOR: rose gold
**DIAL_COLOR**: white
DIAL_MARKERS: [roman]
STRAP_TYPE: metal bracelet
STRAP_COLOR: Champagne
NOTES: looks vintage`

	attrs, err := ParseAttributes(text)
	require.NoError(t, err)
	assert.EqualValues(t, "round", attrs.CaseShape)
	assert.EqualValues(t, "rose-gold", attrs.CaseColor)
	assert.EqualValues(t, "white", attrs.DialColor)
	assert.EqualValues(t, "roman", attrs.DialMarkers)
	assert.EqualValues(t, "metal-bracelet", attrs.StrapType)
	assert.EqualValues(t, "other", attrs.StrapColor)
}

func TestParseAttributes_Incomplete(t *testing.T) {
	text := "CASE_SHAPE: round\nCASE_COLOR: gold\nDIAL_COLOR: white\nDIAL_MARKERS: roman\nSTRAP_TYPE: leather\nSTRAP_COLOR:"

	_, err := ParseAttributes(text)
	require.Error(t, err)
	assert.Equal(t, KindIncompleteAttributes, KindOf(err))
	assert.Contains(t, err.Error(), "STRAP_COLOR")

	_, err = ParseAttributes("   ")
	assert.Equal(t, KindEmptyResponse, KindOf(err))
}

func TestAttributesPrompt_ListsEveryKey(t *testing.T) {
	assert.True(t, strings.HasPrefix(AttributesPrompt, "Analyze this watch"))
	assert.Contains(t, AttributesPrompt, "1. CASE_SHAPE: round, square, rectangular, oval, triangular, other")
	assert.Contains(t, AttributesPrompt, "6. STRAP_COLOR: gold, silver, black, brown, tan, pink, other")
	assert.Contains(t, AttributesPrompt, "STRAP_COLOR: [value]")
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindAPIError, KindOf(errors.New("boom")))
	assert.Equal(t, KindRateLimit, KindOf(RateLimited(errors.New("429"))))

	long := APIError(errors.New(strings.Repeat("x", 500)))
	assert.Len(t, long.Detail, maxDetail)
	assert.Equal(t, "api_error", long.Kind.String())
}

func TestNew_UsesPrompts(t *testing.T) {
	gen := &fakeGenerator{text: map[string]string{
		MultiplicityPrompt: "SINGLE",
		AttributesPrompt:   "CASE_SHAPE: round\nCASE_COLOR: gold\nDIAL_COLOR: white\nDIAL_MARKERS: roman\nSTRAP_TYPE: leather\nSTRAP_COLOR: brown",
	}}
	c := New(gen)

	m, err := c.CheckMultiplicity(t.Context(), Image{})
	require.NoError(t, err)
	assert.Equal(t, Single, m)

	attrs, err := c.ExtractAttributes(t.Context(), Image{})
	require.NoError(t, err)
	assert.Equal(t, sampleAttrs(), attrs)
	assert.Equal(t, []string{MultiplicityPrompt, AttributesPrompt}, gen.prompts)
}

func TestNew_WrapsUntypedBackendErrors(t *testing.T) {
	c := New(&fakeGenerator{err: errors.New("connection reset")})
	_, err := c.CheckMultiplicity(t.Context(), Image{})

	var ce *Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, KindAPIError, ce.Kind)
	assert.Equal(t, "connection reset", ce.Detail)
}
