// Package resume turns uploaded resumes into plain text for portfolio sync.
package resume

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// MaxPDFBytes caps the size of an uploaded PDF.
const MaxPDFBytes = 10 << 20

var (
	// ErrNotPDF is returned for data without a PDF header.
	ErrNotPDF = errors.New("not a PDF document")
	// ErrNoText is returned when a resume yields no readable text.
	ErrNoText = errors.New("resume contains no text")
	// ErrTooLarge is returned for uploads over MaxPDFBytes.
	ErrTooLarge = errors.New("resume is too large")
)

// ExtractPDF returns the plain text of a PDF document.
func ExtractPDF(data []byte) (text string, err error) {
	if len(data) > MaxPDFBytes {
		return "", ErrTooLarge
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-")) {
		return "", ErrNotPDF
	}

	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("parsing pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}

	text = Clean(string(raw))
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// Extract dispatches on the content type or file name: PDFs are parsed,
// HTML and plain text are cleaned.
func Extract(name, contentType string, data []byte) (string, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(contentType, "pdf") || strings.HasSuffix(lower, ".pdf"):
		return ExtractPDF(data)
	case strings.Contains(contentType, "html") || strings.HasSuffix(lower, ".html") || strings.HasSuffix(lower, ".htm"):
		text := Clean(string(data))
		if text == "" {
			return "", ErrNoText
		}
		return text, nil
	default:
		text := collapse(string(data))
		if text == "" {
			return "", ErrNoText
		}
		return text, nil
	}
}

// Clean strips markup from text and collapses runs of blank space while
// keeping paragraph breaks.
func Clean(text string) string {
	if strings.ContainsRune(text, '<') {
		text = stripTags(text)
	}
	return collapse(text)
}

func stripTags(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var sb strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return sb.String()
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			case "br", "p", "div", "li", "h1", "h2", "h3", "h4", "tr":
				sb.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "p", "div", "li", "h1", "h2", "h3", "h4", "tr":
				sb.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		}
	}
}

// collapse trims every line, squeezes inner whitespace and keeps at most
// one blank line between paragraphs.
func collapse(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\r' || (unicode.IsControl(r) && r != '\n' && r != '\t') {
			return -1
		}
		return r
	}, s)

	var out []string
	blank := false
	for line := range strings.SplitSeq(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank = len(out) > 0
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
