// File path: internal/highlight/matcher.go

// Package highlight maps LLM-cited quotes back onto the submitted evidence.
// Quotes are normalized (Unicode NFKC, whitespace stripped), long quotes are
// split into search segments, and each segment is located by exact substring
// match first and bounded fuzzy match second. Matching is best effort: a quote
// that cannot be located is reported as unmatched, never as an error.
package highlight

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/unicode/norm"

	"github.com/auditlens/auditlens/internal/audit"
	"github.com/auditlens/auditlens/internal/evidence"
)

const (
	// segmentRunes is the normalized length above which a quote is split
	// into independently searched segments.
	segmentRunes = 60
	// minSegmentRunes keeps a trailing remainder from becoming its own
	// too-short segment.
	minSegmentRunes = 20
	// fuzzyThreshold is the minimum Levenshtein similarity for a fuzzy hit.
	fuzzyThreshold = 0.85
)

// Region is one located occurrence of a quote segment in the evidence.
// Start/End are byte offsets into the NFKC-normalized page text, whose matched
// slice is returned in Text; for spreadsheet evidence the locator is the sheet
// and cell reference instead.
type Region struct {
	File    string  `json:"file"`
	Page    int     `json:"page,omitempty"`
	Sheet   string  `json:"sheet,omitempty"`
	Cell    string  `json:"cell,omitempty"`
	Start   int     `json:"start,omitempty"`
	End     int     `json:"end,omitempty"`
	Text    string  `json:"text"`
	Method  string  `json:"method"`
	Score   float64 `json:"score"`
	Segment string  `json:"segment,omitempty"`
}

// CitationMatch is the highlighting outcome for one citation.
type CitationMatch struct {
	Citation audit.Citation `json:"citation"`
	Matched  bool           `json:"matched"`
	Regions  []Region       `json:"regions,omitempty"`
}

// FindCitations locates every citation in the extracted evidence. Citations
// naming a file are searched in that file only; the rest search all documents.
func FindCitations(docs []evidence.Document, citations []audit.Citation) []CitationMatch {
	matches := make([]CitationMatch, 0, len(citations))
	for _, citation := range citations {
		match := CitationMatch{Citation: citation}
		segments := splitSegments(normalizeText(citation.Quote))
		if len(segments) == 0 {
			matches = append(matches, match)
			continue
		}
		for _, doc := range docs {
			if citation.File != "" && !strings.EqualFold(strings.TrimSpace(citation.File), strings.TrimSpace(doc.File)) {
				continue
			}
			match.Regions = append(match.Regions, searchDocument(doc, segments)...)
		}
		match.Matched = len(match.Regions) > 0
		matches = append(matches, match)
	}
	return matches
}

func searchDocument(doc evidence.Document, segments []string) []Region {
	var regions []Region
	for _, page := range doc.Pages {
		indexed := indexText(page.Text)
		for _, segment := range segments {
			if region, ok := indexed.locate(segment); ok {
				region.File = doc.File
				region.Page = page.Number
				region.Segment = segment
				regions = append(regions, region)
			}
		}
	}
	for _, sheet := range doc.Sheets {
		for _, cell := range sheet.Cells {
			cellNorm := normalizeText(cell.Text)
			if cellNorm == "" {
				continue
			}
			for _, segment := range segments {
				method, score, ok := matchCell(cellNorm, segment)
				if !ok {
					continue
				}
				regions = append(regions, Region{
					File:    doc.File,
					Sheet:   sheet.Name,
					Cell:    cell.Ref,
					Text:    cell.Text,
					Method:  method,
					Score:   score,
					Segment: segment,
				})
				break
			}
		}
	}
	return regions
}

// matchCell accepts a hit when the segment sits inside the cell, the cell sits
// inside the segment (quotes often span several cells), or the two are close
// by edit distance.
func matchCell(cellNorm, segment string) (string, float64, bool) {
	if strings.Contains(cellNorm, segment) || strings.Contains(segment, cellNorm) {
		return "exact", 1.0, true
	}
	if score := similarity(cellNorm, segment); score >= fuzzyThreshold {
		return "fuzzy", score, true
	}
	return "", 0, false
}

// indexedText is the NFKC-normalized, whitespace-stripped form of a page with
// a per-rune map back to byte offsets in the original text.
type indexedText struct {
	original string
	runes    []rune
	offsets  []int
}

func indexText(text string) indexedText {
	normalizedStr := norm.NFKC.String(text)
	indexed := indexedText{original: text}
	// Offsets refer to the normalized string; for highlighting purposes the
	// normalized text is close enough to the original that callers receive
	// offsets into it alongside the matched text itself.
	for offset, r := range normalizedStr {
		if unicode.IsSpace(r) {
			continue
		}
		indexed.runes = append(indexed.runes, unicode.ToLower(r))
		indexed.offsets = append(indexed.offsets, offset)
	}
	indexed.original = normalizedStr
	return indexed
}

// locate finds one segment in the indexed page, exact first, fuzzy second.
func (t indexedText) locate(segment string) (Region, bool) {
	if len(t.runes) == 0 || segment == "" {
		return Region{}, false
	}
	haystack := string(t.runes)
	if byteIdx := strings.Index(haystack, segment); byteIdx >= 0 {
		runeIdx := len([]rune(haystack[:byteIdx]))
		runeLen := len([]rune(segment))
		start, end := t.span(runeIdx, runeLen)
		return Region{Start: start, End: end, Text: t.original[start:end], Method: "exact", Score: 1.0}, true
	}
	return t.fuzzyLocate(segment)
}

func (t indexedText) fuzzyLocate(segment string) (Region, bool) {
	window := len([]rune(segment))
	if window == 0 || window > len(t.runes) {
		return Region{}, false
	}
	step := window / 8
	if step < 1 {
		step = 1
	}
	bestScore := 0.0
	bestIdx := -1
	for idx := 0; idx+window <= len(t.runes); idx += step {
		candidate := string(t.runes[idx : idx+window])
		if score := similarity(candidate, segment); score > bestScore {
			bestScore = score
			bestIdx = idx
		}
	}
	if bestIdx < 0 || bestScore < fuzzyThreshold {
		return Region{}, false
	}
	start, end := t.span(bestIdx, window)
	return Region{Start: start, End: end, Text: t.original[start:end], Method: "fuzzy", Score: bestScore}, true
}

// span converts a normalized rune range back to byte offsets.
func (t indexedText) span(runeIdx, runeLen int) (int, int) {
	start := t.offsets[runeIdx]
	last := runeIdx + runeLen - 1
	end := t.offsets[last]
	// Advance past the final rune.
	for _, r := range t.original[end:] {
		end += len(string(r))
		break
	}
	return start, end
}

// normalizeText applies NFKC, strips all whitespace, and lowercases.
func normalizeText(text string) string {
	normalizedStr := norm.NFKC.String(text)
	var b strings.Builder
	b.Grow(len(normalizedStr))
	for _, r := range normalizedStr {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// splitSegments cuts a long normalized quote into search segments of roughly
// segmentRunes runes, folding a short remainder into the previous segment.
func splitSegments(quote string) []string {
	runes := []rune(quote)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= segmentRunes {
		return []string{quote}
	}
	var segments []string
	for start := 0; start < len(runes); start += segmentRunes {
		end := start + segmentRunes
		if end > len(runes) {
			end = len(runes)
		}
		segments = append(segments, string(runes[start:end]))
	}
	if n := len(segments); n > 1 && len([]rune(segments[n-1])) < minSegmentRunes {
		segments[n-2] += segments[n-1]
		segments = segments[:n-1]
	}
	return segments
}

func similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}
