// File path: internal/highlight/highlight_test.go
package highlight

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/auditlens/auditlens/internal/audit"
	"github.com/auditlens/auditlens/internal/evidence"
)

func workbookDoc(t *testing.T) evidence.Document {
	t.Helper()
	book := excelize.NewFile()
	if err := book.SetCellValue("Sheet1", "B2", "Approved by Jane Smith"); err != nil {
		t.Fatalf("set cell: %v", err)
	}
	buf, err := book.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return evidence.Document{
		File: "book.xlsx",
		Kind: evidence.KindExcel,
		Raw:  buf.Bytes(),
		Sheets: []evidence.Sheet{{
			Name:  "Sheet1",
			Cells: []evidence.Cell{{Ref: "B2", Text: "Approved by Jane Smith"}},
		}},
	}
}

func TestApplyAnnotatesWorkbook(t *testing.T) {
	doc := workbookDoc(t)
	docs := []evidence.Document{doc}
	matches := FindCitations(docs, []audit.Citation{{Quote: "Approved by Jane Smith"}})
	result := Apply(docs, matches)

	if len(result.Citations) != 1 || !result.Citations[0].Matched {
		t.Fatalf("expected matched citation: %+v", result.Citations)
	}
	if len(result.Annotated) != 1 {
		t.Fatalf("expected one annotated file, got %d", len(result.Annotated))
	}
	annotated := result.Annotated[0]
	if annotated.File != "book.xlsx" {
		t.Fatalf("unexpected annotated file: %s", annotated.File)
	}
	raw, err := base64.StdEncoding.DecodeString(annotated.Data)
	if err != nil {
		t.Fatalf("annotated payload not base64: %v", err)
	}
	book, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("annotated workbook unreadable: %v", err)
	}
	defer book.Close()
	value, err := book.GetCellValue("Sheet1", "B2")
	if err != nil || value != "Approved by Jane Smith" {
		t.Fatalf("cell content changed: %q err=%v", value, err)
	}
	styleID, err := book.GetCellStyle("Sheet1", "B2")
	if err != nil {
		t.Fatalf("get cell style: %v", err)
	}
	if styleID == 0 {
		t.Fatalf("expected highlight style on B2")
	}
}

func TestApplySkipsUnmatchedWorkbooks(t *testing.T) {
	doc := workbookDoc(t)
	docs := []evidence.Document{doc}
	matches := FindCitations(docs, []audit.Citation{{Quote: "text that appears nowhere in this workbook at all"}})
	result := Apply(docs, matches)
	if len(result.Annotated) != 0 {
		t.Fatalf("unmatched workbook should not be annotated")
	}
	if result.Citations[0].Matched {
		t.Fatalf("citation should be unmatched")
	}
}

func TestApplyIgnoresNonWorkbookEvidence(t *testing.T) {
	doc := pageDoc("memo.txt", "approved by Jane Smith on 2024-02-03")
	docs := []evidence.Document{doc}
	matches := FindCitations(docs, []audit.Citation{{Quote: "approved by Jane Smith"}})
	result := Apply(docs, matches)
	if len(result.Annotated) != 0 {
		t.Fatalf("text evidence should not produce annotated files")
	}
	if !result.Citations[0].Matched {
		t.Fatalf("citation should still be located in text")
	}
}
