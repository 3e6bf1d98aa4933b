package parser

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

// PageError records a page that was skipped during extraction.
type PageError struct {
	Page int
	Err  error
}

// Extraction is the text pulled out of a PDF plus the pages that had to be skipped.
type Extraction struct {
	Text    string
	Pages   int
	Skipped []PageError
}

// ExtractFile opens filePath and extracts its text.
func ExtractFile(filePath string) (*Extraction, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return Extract(f, stat.Size())
}

// ExtractBytes is Extract over an in-memory document.
func ExtractBytes(data []byte) (*Extraction, error) {
	return Extract(bytes.NewReader(data), int64(len(data)))
}

// Extract concatenates the text of every page in page order. Pages that fail
// or carry no text are skipped; only a document that cannot be opened as a
// PDF at all is an error. Text that is not clean UTF-8 is sanitized lossily.
func Extract(r io.ReaderAt, size int64) (*Extraction, error) {
	reader, err := openReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	numPages, err := pageCount(reader)
	if err != nil {
		return nil, fmt.Errorf("read page tree: %w", err)
	}

	out := &Extraction{Pages: numPages}
	var text strings.Builder
	for i := 1; i <= numPages; i++ {
		pageText, err := pageText(reader, i)
		if err != nil {
			log.Warn().Err(err).Int("page", i).Msg("Skipping unreadable PDF page")
			out.Skipped = append(out.Skipped, PageError{Page: i, Err: err})
			continue
		}
		if pageText == "" {
			continue
		}
		text.WriteString(pageText)
	}

	out.Text = Sanitize(text.String())
	log.Debug().
		Int("pages", numPages).
		Int("skipped", len(out.Skipped)).
		Int("chars", len(out.Text)).
		Msg("Extracted PDF text")
	return out, nil
}

// the pdf package reports malformed input by panicking
func openReader(r io.ReaderAt, size int64) (reader *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reader, err = nil, fmt.Errorf("malformed pdf: %v", rec)
		}
	}()
	return pdf.NewReader(r, size)
}

func pageCount(reader *pdf.Reader) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			n, err = 0, fmt.Errorf("malformed page tree: %v", rec)
		}
	}()
	return reader.NumPage(), nil
}

func pageText(reader *pdf.Reader, i int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("page %d: %v", i, rec)
		}
	}()

	page := reader.Page(i)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d: missing page object", i)
	}
	if page.V.Key("Contents").IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}
