// File path: internal/evidence/evidence.go

// Package evidence decodes submitted evidence files and extracts the text the
// evaluation tasks and the highlighting post-processor operate on. Extraction
// is best effort: a file that cannot be parsed yields an empty document with a
// recorded warning, never a failed evaluation.
package evidence

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/auditlens/auditlens/internal/audit"
	"github.com/auditlens/auditlens/internal/common"
)

// ErrInvalidPayload marks evidence whose Base64 payload could not be decoded.
// Callers use it to classify the failure as a client error.
var ErrInvalidPayload = errors.New("invalid evidence payload")

type Kind string

const (
	KindPDF   Kind = "pdf"
	KindExcel Kind = "excel"
	KindImage Kind = "image"
	KindText  Kind = "text"
)

// Cell is one non-empty spreadsheet cell.
type Cell struct {
	Ref  string `json:"ref"`
	Text string `json:"text"`
}

// Sheet is one worksheet of an Excel evidence file.
type Sheet struct {
	Name  string `json:"name"`
	Cells []Cell `json:"cells"`
}

// Page is one page of extracted text. Plain-text evidence is a single page.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Document is a decoded, extracted evidence file.
type Document struct {
	File     string   `json:"file"`
	Kind     Kind     `json:"kind"`
	MimeType string   `json:"mime_type,omitempty"`
	Raw      []byte   `json:"-"`
	Pages    []Page   `json:"pages,omitempty"`
	Sheets   []Sheet  `json:"sheets,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Decode base64-decodes one evidence file, detects its kind, and extracts its
// text. Only an undecodable payload is an error; extraction problems are
// recorded as warnings on the returned document.
func Decode(file audit.EvidenceFile) (Document, error) {
	raw, err := decodePayload(file.Data)
	if err != nil {
		return Document{}, fmt.Errorf("decode evidence %q: %w", file.Name, err)
	}
	doc := Document{
		File:     file.Name,
		MimeType: file.MimeType,
		Raw:      raw,
		Kind:     detectKind(raw, file.MimeType, file.Name),
	}
	switch doc.Kind {
	case KindPDF:
		pages, err := extractPDF(raw)
		if err != nil {
			doc.Warnings = append(doc.Warnings, fmt.Sprintf("pdf extraction failed: %v", err))
		}
		doc.Pages = pages
	case KindExcel:
		sheets, err := extractWorkbook(raw)
		if err != nil {
			doc.Warnings = append(doc.Warnings, fmt.Sprintf("workbook extraction failed: %v", err))
		}
		doc.Sheets = sheets
	case KindImage:
		// Images are not extracted; they travel to vision-capable providers
		// as attachments.
	default:
		doc.Pages = []Page{{Number: 1, Text: normalizeNewlines(string(raw))}}
	}
	if len(doc.Warnings) > 0 {
		common.Logger().Warn("evidence: extraction degraded", "file", file.Name, "warnings", strings.Join(doc.Warnings, "; "))
	}
	return doc, nil
}

// DecodeAll decodes every submitted file, preserving order.
func DecodeAll(files []audit.EvidenceFile) ([]Document, error) {
	docs := make([]Document, 0, len(files))
	for _, file := range files {
		doc, err := Decode(file)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Text returns the full extracted text of the document.
func (d Document) Text() string {
	var b strings.Builder
	for _, page := range d.Pages {
		b.WriteString(page.Text)
		b.WriteString("\n")
	}
	for _, sheet := range d.Sheets {
		for _, cell := range sheet.Cells {
			b.WriteString(cell.Text)
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}

// HasImages reports whether any decoded document is an image.
func HasImages(docs []Document) bool {
	for _, doc := range docs {
		if doc.Kind == KindImage {
			return true
		}
	}
	return false
}

// FormatForPrompt renders the extracted evidence as a labelled block for task
// prompts, trimming each document to perDocLimit runes.
func FormatForPrompt(docs []Document, perDocLimit int) string {
	var b strings.Builder
	for idx, doc := range docs {
		b.WriteString(fmt.Sprintf("[Evidence %d] File: %s | Kind: %s\n", idx+1, doc.File, doc.Kind))
		switch doc.Kind {
		case KindImage:
			b.WriteString("(image attached separately)\n")
		case KindExcel:
			var sheetText strings.Builder
			for _, sheet := range doc.Sheets {
				sheetText.WriteString("Sheet " + sheet.Name + ":\n")
				for _, cell := range sheet.Cells {
					sheetText.WriteString(cell.Ref + ": " + cell.Text + "\n")
				}
			}
			b.WriteString(trimText(sheetText.String(), perDocLimit))
			b.WriteString("\n")
		default:
			var pageText strings.Builder
			for _, page := range doc.Pages {
				if len(doc.Pages) > 1 {
					pageText.WriteString(fmt.Sprintf("Page %d:\n", page.Number))
				}
				pageText.WriteString(page.Text)
				pageText.WriteString("\n")
			}
			b.WriteString(trimText(pageText.String(), perDocLimit))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func decodePayload(data string) ([]byte, error) {
	cleaned := strings.TrimSpace(data)
	if idx := strings.Index(cleaned, ";base64,"); idx >= 0 && strings.HasPrefix(cleaned, "data:") {
		cleaned = cleaned[idx+len(";base64,"):]
	}
	cleaned = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, cleaned)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}
	raw, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(cleaned)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrInvalidPayload, err)
	}
	return raw, nil
}

func detectKind(raw []byte, mimeType, name string) Kind {
	switch {
	case bytes.HasPrefix(raw, []byte("%PDF")):
		return KindPDF
	case bytes.HasPrefix(raw, []byte{0x89, 'P', 'N', 'G'}),
		bytes.HasPrefix(raw, []byte{0xFF, 0xD8, 0xFF}),
		bytes.HasPrefix(raw, []byte("GIF8")):
		return KindImage
	case bytes.HasPrefix(raw, []byte{'P', 'K', 0x03, 0x04}):
		// Zip container: treat as a workbook when the name or MIME agrees,
		// otherwise fall through to the hints below.
		if isExcelHint(mimeType, name) || !isKnownHint(mimeType, name) {
			return KindExcel
		}
	}
	mime := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.Contains(mime, "pdf"):
		return KindPDF
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case isExcelHint(mimeType, name):
		return KindExcel
	default:
		return KindText
	}
}

func isExcelHint(mimeType, name string) bool {
	mime := strings.ToLower(strings.TrimSpace(mimeType))
	lower := strings.ToLower(strings.TrimSpace(name))
	return strings.Contains(mime, "spreadsheet") || strings.Contains(mime, "excel") ||
		strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xlsm")
}

func isKnownHint(mimeType, name string) bool {
	mime := strings.ToLower(strings.TrimSpace(mimeType))
	return mime != "" && mime != "application/octet-stream" && mime != "application/zip" ||
		strings.Contains(strings.ToLower(name), ".")
}

func normalizeNewlines(text string) string {
	return strings.ReplaceAll(text, "\r\n", "\n")
}

func trimText(text string, limit int) string {
	cleaned := strings.TrimSpace(text)
	if limit <= 0 {
		return cleaned
	}
	runes := []rune(cleaned)
	if len(runes) <= limit {
		return cleaned
	}
	trimmed := strings.TrimSpace(string(runes[:limit]))
	if trimmed == "" {
		return cleaned
	}
	return trimmed + " [truncated]"
}
