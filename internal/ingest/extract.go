package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ErrEmptyDocument is returned when a document yields no extractable
// text. Such documents are marked as errored rather than ready with
// zero chunks.
var ErrEmptyDocument = errors.New("document contains no extractable text")

// ExtractText pulls plain text out of a document's raw bytes. PDFs go
// through a text extractor; everything else is treated as UTF-8 text.
func ExtractText(data []byte, mimeType, filename string) (string, error) {
	var (
		text string
		err  error
	)
	if isPDF(mimeType, filename) {
		text, err = extractPDF(data)
	} else {
		text, err = extractPlain(data)
	}
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyDocument, filename)
	}
	return text, nil
}

func isPDF(mimeType, filename string) bool {
	if strings.EqualFold(mimeType, "application/pdf") {
		return true
	}
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page should not sink the whole
			// document.
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}

func extractPlain(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errors.New("document is not valid UTF-8 text")
	}
	return string(data), nil
}
