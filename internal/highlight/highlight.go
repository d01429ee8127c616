// File path: internal/highlight/highlight.go
package highlight

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/auditlens/auditlens/internal/common"
	"github.com/auditlens/auditlens/internal/evidence"
)

const highlightFillColor = "FFFF00"

// AnnotatedFile is a re-encoded evidence file with highlight marks applied.
type AnnotatedFile struct {
	File     string `json:"file"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Result is the full highlighting outcome for one evaluation: where each
// citation landed, plus annotated copies of the workbook evidence.
type Result struct {
	Citations []CitationMatch `json:"citations"`
	Annotated []AnnotatedFile `json:"annotated,omitempty"`
}

// Apply locates the citations in the evidence and writes highlight fills back
// into any workbook files that received matches. PDF and text evidence carry
// their highlights as located regions only.
func Apply(docs []evidence.Document, matches []CitationMatch) Result {
	result := Result{Citations: matches}
	logger := common.Logger()
	for _, doc := range docs {
		if doc.Kind != evidence.KindExcel {
			continue
		}
		cells := matchedCells(doc.File, matches)
		if len(cells) == 0 {
			continue
		}
		annotated, err := annotateWorkbook(doc.Raw, cells)
		if err != nil {
			logger.Warn("highlight: workbook annotation failed", "file", doc.File, "error", err)
			continue
		}
		result.Annotated = append(result.Annotated, AnnotatedFile{
			File:     doc.File,
			MimeType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Data:     base64.StdEncoding.EncodeToString(annotated),
		})
	}
	return result
}

type sheetCell struct {
	sheet string
	cell  string
}

func matchedCells(file string, matches []CitationMatch) []sheetCell {
	seen := make(map[sheetCell]struct{})
	var cells []sheetCell
	for _, match := range matches {
		for _, region := range match.Regions {
			if region.File != file || region.Sheet == "" || region.Cell == "" {
				continue
			}
			key := sheetCell{sheet: region.Sheet, cell: region.Cell}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			cells = append(cells, key)
		}
	}
	return cells
}

// annotateWorkbook applies a yellow pattern fill to every matched cell and
// re-serializes the workbook.
func annotateWorkbook(raw []byte, cells []sheetCell) ([]byte, error) {
	book, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()
	styleID, err := book.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{highlightFillColor}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create highlight style: %w", err)
	}
	for _, target := range cells {
		if err := book.SetCellStyle(target.sheet, target.cell, target.cell, styleID); err != nil {
			return nil, fmt.Errorf("style cell %s!%s: %w", target.sheet, target.cell, err)
		}
	}
	buf, err := book.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
