package transcript

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	t.Parallel()

	require.Equal(t, "show me spending", Normalize("  show \n me\t spending  "))
	require.Empty(t, Normalize(" \n\t "))
}

func TestFormatCapitalizesFirstLetterByDefault(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Show me spending. for march", Format("show me spending. for march", Options{}))
	require.Equal(t, "42 items", Format("42 items", Options{}))
	require.Empty(t, Format("   ", Options{TrailingSpace: true}))
}

func TestFormatSentenceCaseAndTrailingSpace(t *testing.T) {
	t.Parallel()

	got := Format(" hello world.  from\nmurmur ", Options{CapitalizeSentences: true, TrailingSpace: true})
	require.Equal(t, "Hello world. From murmur ", got)
}

func TestFormatSentenceCaseCapitalizesPronounI(t *testing.T) {
	t.Parallel()

	got := Format("when i speak i'm clearer. i think i will keep using it.", Options{CapitalizeSentences: true})
	require.Equal(t, "When I speak I'm clearer. I think I will keep using it.", got)
}

func TestFormatSentenceCaseKeepsAbbreviationsAndInitialisms(t *testing.T) {
	t.Parallel()

	got := Format("ask dr. smith about the u.s. budget, i.e. taxes? yes", Options{CapitalizeSentences: true})
	require.Equal(t, "Ask dr. smith about the u.s. budget, i.e. taxes? Yes", got)
}

func TestFormatSentenceCaseSkipsOpeningQuotes(t *testing.T) {
	t.Parallel()

	got := Format(`he said "stop." "then" go`, Options{CapitalizeSentences: true})
	require.Equal(t, `He said "stop." "Then" go`, got)
}

func TestFormatIsIdempotent(t *testing.T) {
	t.Parallel()

	opts := Options{CapitalizeSentences: true}
	once := Format("hello world. this is murmur", opts)
	require.Equal(t, once, Format(once, opts))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := map[string]Intent{
		"show me spending for march":   IntentQuery,
		"What's my budget":              IntentQuery,
		"chart, groceries by week":      IntentQuery,
		"add a transaction for coffee":  IntentAction,
		"Delete the last budget":        IntentAction,
		"newsletter subscriptions cost": IntentUnknown,
		"thanks":                        IntentUnknown,
		"":                              IntentUnknown,
	}
	for text, want := range tests {
		require.Equal(t, want, Classify(text), text)
	}
}
