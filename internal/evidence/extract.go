// File path: internal/evidence/extract.go
package evidence

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// extractPDF pulls plain text from each page. The pdf library panics on some
// malformed files, so the whole extraction runs behind a recover.
func extractPDF(raw []byte) (pages []Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	total := reader.NumPage()
	pages = make([]Page, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, Page{Number: i, Text: ""})
			continue
		}
		pages = append(pages, Page{Number: i, Text: strings.TrimSpace(text)})
	}
	return pages, nil
}

// extractWorkbook reads every non-empty cell of every sheet.
func extractWorkbook(raw []byte) ([]Sheet, error) {
	book, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()
	var sheets []Sheet
	for _, name := range book.GetSheetList() {
		rows, err := book.GetRows(name)
		if err != nil {
			return sheets, fmt.Errorf("read sheet %q: %w", name, err)
		}
		sheet := Sheet{Name: name}
		for rowIdx, row := range rows {
			for colIdx, value := range row {
				text := strings.TrimSpace(value)
				if text == "" {
					continue
				}
				ref, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
				if err != nil {
					continue
				}
				sheet.Cells = append(sheet.Cells, Cell{Ref: ref, Text: text})
			}
		}
		if len(sheet.Cells) > 0 {
			sheets = append(sheets, sheet)
		}
	}
	return sheets, nil
}
