// File path: internal/evidence/evidence_test.go
package evidence

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/auditlens/auditlens/internal/audit"
)

func encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func TestDecodeTextEvidence(t *testing.T) {
	doc, err := Decode(audit.EvidenceFile{
		Name: "memo.txt",
		Data: encode([]byte("Payment approved by CFO\r\non 2024-01-15.")),
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Kind != KindText {
		t.Fatalf("expected text kind, got %s", doc.Kind)
	}
	if len(doc.Pages) != 1 {
		t.Fatalf("expected one page, got %d", len(doc.Pages))
	}
	if strings.Contains(doc.Pages[0].Text, "\r\n") {
		t.Fatalf("newlines should be normalized: %q", doc.Pages[0].Text)
	}
	if got := doc.Text(); !strings.Contains(got, "approved by CFO") {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestDecodeDataURIPayload(t *testing.T) {
	payload := "data:text/plain;base64," + encode([]byte("hello"))
	doc, err := Decode(audit.EvidenceFile{Name: "note.txt", Data: payload})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(doc.Raw) != "hello" {
		t.Fatalf("unexpected raw payload: %q", doc.Raw)
	}
}

func TestDecodeRejectsBadPayloads(t *testing.T) {
	if _, err := Decode(audit.EvidenceFile{Name: "x", Data: "   "}); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for empty payload, got %v", err)
	}
	if _, err := Decode(audit.EvidenceFile{Name: "x", Data: "!!not-base64!!"}); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for invalid base64, got %v", err)
	}
}

func TestDetectKinds(t *testing.T) {
	cases := []struct {
		name string
		file audit.EvidenceFile
		want Kind
	}{
		{"pdf magic", audit.EvidenceFile{Name: "a.pdf", Data: encode([]byte("%PDF-1.7 garbage"))}, KindPDF},
		{"png magic", audit.EvidenceFile{Name: "shot", Data: encode([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A})}, KindImage},
		{"jpeg magic", audit.EvidenceFile{Name: "photo", Data: encode([]byte{0xFF, 0xD8, 0xFF, 0xE0})}, KindImage},
		{"mime pdf", audit.EvidenceFile{Name: "scan", MimeType: "application/pdf", Data: encode([]byte("no magic"))}, KindPDF},
		{"mime image", audit.EvidenceFile{Name: "pic", MimeType: "image/png", Data: encode([]byte("no magic"))}, KindImage},
		{"xlsx name", audit.EvidenceFile{Name: "book.xlsx", Data: encode([]byte{'P', 'K', 0x03, 0x04, 0x00})}, KindExcel},
		{"fallback text", audit.EvidenceFile{Name: "notes.txt", Data: encode([]byte("plain words"))}, KindText},
	}
	for _, tc := range cases {
		doc, err := Decode(tc.file)
		if err != nil {
			t.Fatalf("%s: decode: %v", tc.name, err)
		}
		if doc.Kind != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, doc.Kind)
		}
	}
}

func TestDegradedExtractionWarnsInsteadOfFailing(t *testing.T) {
	doc, err := Decode(audit.EvidenceFile{Name: "broken.pdf", Data: encode([]byte("%PDF-1.4 truncated"))})
	if err != nil {
		t.Fatalf("decode should not fail on unparseable pdf: %v", err)
	}
	if len(doc.Warnings) == 0 {
		t.Fatalf("expected extraction warning")
	}
	if len(doc.Pages) != 0 {
		t.Fatalf("expected no extracted pages, got %d", len(doc.Pages))
	}
}

func TestDecodeWorkbook(t *testing.T) {
	book := excelize.NewFile()
	if err := book.SetCellValue("Sheet1", "A1", "Invoice"); err != nil {
		t.Fatalf("set cell: %v", err)
	}
	if err := book.SetCellValue("Sheet1", "B2", "Approved by Jane Smith"); err != nil {
		t.Fatalf("set cell: %v", err)
	}
	buf, err := book.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	doc, err := Decode(audit.EvidenceFile{Name: "book.xlsx", Data: encode(buf.Bytes())})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Kind != KindExcel {
		t.Fatalf("expected excel kind, got %s", doc.Kind)
	}
	if len(doc.Sheets) == 0 {
		t.Fatalf("expected extracted sheets")
	}
	found := false
	for _, cell := range doc.Sheets[0].Cells {
		if cell.Ref == "B2" && cell.Text == "Approved by Jane Smith" {
			found = true
		}
		if cell.Text == "" {
			t.Fatalf("empty cells should be skipped")
		}
	}
	if !found {
		t.Fatalf("cell B2 not extracted: %+v", doc.Sheets[0].Cells)
	}
}

func TestHasImages(t *testing.T) {
	docs := []Document{{Kind: KindText}, {Kind: KindPDF}}
	if HasImages(docs) {
		t.Fatalf("no images expected")
	}
	docs = append(docs, Document{Kind: KindImage})
	if !HasImages(docs) {
		t.Fatalf("image should be detected")
	}
}

func TestFormatForPromptTruncates(t *testing.T) {
	long := strings.Repeat("audit evidence text ", 50)
	docs := []Document{{
		File:  "long.txt",
		Kind:  KindText,
		Pages: []Page{{Number: 1, Text: long}},
	}}
	block := FormatForPrompt(docs, 100)
	if !strings.Contains(block, "[Evidence 1] File: long.txt | Kind: text") {
		t.Fatalf("missing evidence label:\n%s", block)
	}
	if !strings.Contains(block, "[truncated]") {
		t.Fatalf("expected truncation marker:\n%s", block)
	}
	full := FormatForPrompt(docs, 0)
	if strings.Contains(full, "[truncated]") {
		t.Fatalf("zero limit should not truncate")
	}
}
