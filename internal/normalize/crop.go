// Package normalize turns raw uploads into the substantive text of a filing.
// It extracts text from PDF, HTML and SEC full-submission files and crops away
// cover pages, tables of contents and trailing exhibits.
package normalize

import (
	"log"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMinCropLength is the shortest cropped span accepted before the
	// original text is returned instead.
	DefaultMinCropLength = 1000

	// DefaultTOCWindow is how many bytes after a start heading are inspected
	// for table-of-contents markers.
	DefaultTOCWindow = 200
)

// DefaultStartPatterns are tried in order, most specific first.
var DefaultStartPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Item\s+1\.?\s+Business`),
	regexp.MustCompile(`(?i)Business\s+Section`),
	regexp.MustCompile(`(?i)Financial\s+Highlights`),
	regexp.MustCompile(`(?i)Letter\s+to\s+Shareholders`),
	regexp.MustCompile(`(?i)Introduction`),
}

// DefaultEndPatterns mark where the substantive section stops.
var DefaultEndPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Item\s+15\.?\s+Exhibits`),
	regexp.MustCompile(`(?i)SIGNATURES`),
	regexp.MustCompile(`(?i)Form\s+10-K\s+Summary`),
	regexp.MustCompile(`(?i)Appendix`),
	regexp.MustCompile(`(?i)Index\s+to\s+Consolidated`),
}

var (
	tocPageToken    = regexp.MustCompile(`(?i)Pages?\s+\d+`)
	tocTrailingPage = regexp.MustCompile(`\s{5,}\d+\s*$`)
	tocNextRiskItem = regexp.MustCompile(`(?i)Item\s+1A\.?\s+Risk`)
	defaultCropper  = NewCropper()
)

// Cropper locates the substantive section of a filing by heading heuristics.
type Cropper struct {
	StartPatterns []*regexp.Regexp
	EndPatterns   []*regexp.Regexp
	MinLength     int // in characters
	Window        int // in bytes
}

// NewCropper returns a Cropper with the default headings and thresholds.
func NewCropper() *Cropper {
	return &Cropper{
		StartPatterns: DefaultStartPatterns,
		EndPatterns:   DefaultEndPatterns,
		MinLength:     DefaultMinCropLength,
		Window:        DefaultTOCWindow,
	}
}

// Crop crops text with the default Cropper.
func Crop(text string) string {
	return defaultCropper.Crop(text)
}

// Crop returns the span between the first start heading that is not a table
// of contents entry and the earliest end heading after it. When the span is
// shorter than MinLength the original text is returned unchanged.
func (c *Cropper) Crop(text string) string {
	start, headingEnd, found := c.findStart(text)
	if !found {
		start, headingEnd = 0, 0
	}

	end := c.findEnd(text, headingEnd)
	cropped := text[start:end]

	if utf8.RuneCountInString(cropped) < c.MinLength {
		if found || end < len(text) {
			log.Printf("normalize: cropped text too short (%d chars), keeping full text", utf8.RuneCountInString(cropped))
		}
		return text
	}
	return cropped
}

// findStart returns the byte offsets of the accepted start heading.
func (c *Cropper) findStart(text string) (start, headingEnd int, found bool) {
	for _, pattern := range c.StartPatterns {
		for _, loc := range pattern.FindAllStringIndex(text, -1) {
			windowEnd := loc[1] + c.Window
			if windowEnd > len(text) {
				windowEnd = len(text)
			}
			if looksLikeTOC(text[loc[1]:windowEnd]) {
				continue
			}
			return loc[0], loc[1], true
		}
	}
	return 0, 0, false
}

// findEnd returns the earliest end heading at or after from, or len(text).
func (c *Cropper) findEnd(text string, from int) int {
	end := len(text)
	rest := text[from:]
	for _, pattern := range c.EndPatterns {
		if loc := pattern.FindStringIndex(rest); loc != nil && from+loc[0] < end {
			end = from + loc[0]
		}
	}
	return end
}

// looksLikeTOC reports whether the text following a heading resembles a
// table-of-contents line rather than the section body.
func looksLikeTOC(snippet string) bool {
	switch {
	case strings.Contains(snippet, "..."):
		return true
	case tocPageToken.MatchString(snippet):
		return true
	case tocTrailingPage.MatchString(snippet):
		return true
	case tocNextRiskItem.MatchString(snippet):
		return true
	}
	return false
}
