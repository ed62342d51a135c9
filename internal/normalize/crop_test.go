package normalize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var businessBody = strings.Repeat("The company designs and sells industrial widgets worldwide. ", 60)

func tenK() string {
	return "ACME CORP ANNUAL REPORT\n" +
		"Table of Contents\n" +
		"Item 1. Business ........................ 3\n" +
		"Item 1A. Risk Factors ................... 12\n" +
		"Item 15. Exhibits ....................... 90\n\n" +
		"PART I\n" +
		"Item 1. Business\n" + businessBody +
		"\nItem 15. Exhibits\nExhibit 21 subsidiaries\n" +
		"SIGNATURES\nJohn Doe, Chief Executive Officer\n"
}

func TestCrop_SkipsTableOfContents(t *testing.T) {
	text := tenK()
	got := Crop(text)

	require.True(t, strings.HasPrefix(got, "Item 1. Business\nThe company"), "crop must start at the real section, got %q", got[:60])
	assert.NotContains(t, got, "Item 15. Exhibits")
	assert.NotContains(t, got, "SIGNATURES")
	assert.NotContains(t, got, "Table of Contents")
}

func TestCrop_PageTokenIsTOC(t *testing.T) {
	assert.True(t, looksLikeTOC("   Page 4\nItem 2"))
	assert.True(t, looksLikeTOC(" and Properties          17"))
	assert.True(t, looksLikeTOC("\nItem 1A. Risk Factors"))
	assert.True(t, looksLikeTOC(" ..... 3"))
	assert.False(t, looksLikeTOC("\nAcme designs widgets for 40 countries."))
}

func TestCrop_FallsBackToLowerPriorityHeading(t *testing.T) {
	text := "Cover page\nLetter to Shareholders\n" + businessBody + "\nAppendix\nTables"
	got := Crop(text)
	assert.True(t, strings.HasPrefix(got, "Letter to Shareholders"))
	assert.False(t, strings.Contains(got, "Appendix"))
}

func TestCrop_NoStartHeadingUsesBeginning(t *testing.T) {
	text := businessBody + "\nSIGNATURES\nJane Roe"
	got := Crop(text)
	assert.Equal(t, businessBody+"\n", got)
}

func TestCrop_EarliestEndHeadingWins(t *testing.T) {
	text := "Item 1 Business\n" + businessBody + "\nAppendix A\n" + businessBody + "\nSIGNATURES\n"
	got := Crop(text)
	assert.False(t, strings.Contains(got, "Appendix"))
	assert.True(t, strings.HasSuffix(got, "\n"))
}

func TestCrop_ShortSpanReturnsOriginal(t *testing.T) {
	text := "Cover\nItem 1. Business\nWe make widgets.\nItem 15. Exhibits\n" + businessBody
	got := Crop(text)
	assert.Equal(t, text, got, "a span under the minimum must not be returned")
}

func TestCrop_ShortInputUnchanged(t *testing.T) {
	assert.Equal(t, "tiny", Crop("tiny"))
	assert.Equal(t, "", Crop(""))
}

func TestCrop_Idempotent(t *testing.T) {
	inputs := []string{
		tenK(),
		"Cover page\nLetter to Shareholders\n" + businessBody + "\nAppendix\nTables",
		businessBody + "\nSIGNATURES\nJane Roe",
		"Item 1 Business\n" + businessBody + "\nAppendix A\n" + businessBody + "\nSIGNATURES\n",
	}
	for _, in := range inputs {
		once := Crop(in)
		assert.Equal(t, once, Crop(once))
	}
}

func TestCrop_NeverShorterThanMinimumUnlessInputIs(t *testing.T) {
	inputs := []string{
		tenK(),
		"Item 1. Business\nshort\nSIGNATURES\n" + businessBody,
		"Introduction " + strings.Repeat("x", 1200) + " Appendix",
		"Introduction tiny Appendix",
	}
	for _, in := range inputs {
		got := Crop(in)
		if utf8.RuneCountInString(in) >= DefaultMinCropLength {
			assert.GreaterOrEqual(t, utf8.RuneCountInString(got), DefaultMinCropLength)
		} else {
			assert.Equal(t, in, got)
		}
	}
}

func TestCropper_CustomMinimum(t *testing.T) {
	c := NewCropper()
	c.MinLength = 10
	got := c.Crop("Cover\nItem 1. Business\nWe make widgets.\nItem 15. Exhibits\nlist")
	assert.Equal(t, "Item 1. Business\nWe make widgets.\n", got)
}
