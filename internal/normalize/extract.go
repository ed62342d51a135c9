package normalize

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dslipak/pdf"
)

// ErrUnsupportedContent is returned for uploads that are neither text,
// HTML/SEC markup nor PDF.
var ErrUnsupportedContent = errors.New("unsupported content type")

// Content kinds recognised by Extract.
const (
	KindPDF   = "pdf"
	KindHTML  = "html"
	KindText  = "text"
	KindOther = ""
)

// DetectKind classifies an upload by its declared content type, falling
// back to the file extension when the type is missing or generic.
func DetectKind(filename, contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	switch mediaType {
	case "application/pdf":
		return KindPDF
	case "text/html", "application/xhtml+xml":
		return KindHTML
	case "text/plain", "text/markdown":
		return KindText
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return KindPDF
	case ".htm", ".html", ".xhtml":
		return KindHTML
	case ".txt", ".md", "":
		return KindText
	}
	return KindOther
}

// Extract reads the file at path and returns its normalized text: markup is
// stripped, SEC submission wrappers are unwrapped and the result is cropped.
func Extract(path, filename, contentType string) (string, error) {
	switch DetectKind(filename, contentType) {
	case KindPDF:
		text, err := ExtractPDF(path)
		if err != nil {
			return "", err
		}
		return Crop(text), nil

	case KindHTML:
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read upload: %w", err)
		}
		return CleanFiling(string(raw)), nil

	case KindText:
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read upload: %w", err)
		}
		if !utf8.Valid(raw) {
			raw = bytes.ToValidUTF8(raw, []byte("�"))
		}
		text := string(raw)
		// EDGAR .txt submissions are HTML inside SGML wrappers
		if IsSECSubmission(text) {
			return CleanFiling(text), nil
		}
		return Crop(text), nil

	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedContent, contentType)
	}
}

// IsSECSubmission reports whether text looks like an EDGAR full-submission file.
func IsSECSubmission(text string) bool {
	head := text
	if len(head) > 4096 {
		head = head[:4096]
	}
	upper := strings.ToUpper(head)
	return strings.Contains(upper, "<SEC-DOCUMENT>") || strings.Contains(upper, "<DOCUMENT>")
}

// ExtractPDF returns the plain text of every page of the PDF at path.
func ExtractPDF(path string) (text string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat PDF: %w", err)
	}

	// the pdf package panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read PDF text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("failed to read PDF text: %w", err)
	}
	return buf.String(), nil
}
