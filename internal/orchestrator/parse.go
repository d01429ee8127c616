// File path: internal/orchestrator/parse.go
package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/auditlens/auditlens/internal/audit"
)

// ReviewVerdict is the reviewer's answer for a plan or a judgment.
type ReviewVerdict struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

// extractJSONObject pulls the first balanced JSON object out of an LLM reply,
// tolerating code fences and surrounding prose.
func extractJSONObject(raw string) (string, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return "", fmt.Errorf("empty response")
	}
	start := strings.IndexByte(cleaned, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object in response")
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(cleaned); i++ {
		c := cleaned[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return cleaned[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in response")
}

func parsePlan(raw string) (audit.Plan, error) {
	blob, err := extractJSONObject(raw)
	if err != nil {
		return audit.Plan{}, fmt.Errorf("parse plan: %w", err)
	}
	var plan audit.Plan
	if err := json.Unmarshal([]byte(blob), &plan); err != nil {
		return audit.Plan{}, fmt.Errorf("parse plan: %w", err)
	}
	cleaned := plan.Tasks[:0]
	for _, task := range plan.Tasks {
		task.ID = strings.ToUpper(strings.TrimSpace(task.ID))
		if task.ID == "" {
			continue
		}
		cleaned = append(cleaned, task)
	}
	plan.Tasks = cleaned
	if len(plan.Tasks) == 0 {
		return audit.Plan{}, fmt.Errorf("parse plan: no tasks selected")
	}
	return plan, nil
}

func parseReview(raw string) (ReviewVerdict, error) {
	blob, err := extractJSONObject(raw)
	if err != nil {
		return ReviewVerdict{}, fmt.Errorf("parse review: %w", err)
	}
	var verdict ReviewVerdict
	if err := json.Unmarshal([]byte(blob), &verdict); err != nil {
		return ReviewVerdict{}, fmt.Errorf("parse review: %w", err)
	}
	verdict.Feedback = strings.TrimSpace(verdict.Feedback)
	return verdict, nil
}

func parseJudgment(raw string) (audit.Judgment, error) {
	blob, err := extractJSONObject(raw)
	if err != nil {
		return audit.Judgment{}, fmt.Errorf("parse judgment: %w", err)
	}
	var decoded struct {
		Conclusion string           `json:"conclusion"`
		Confidence float64          `json:"confidence"`
		Reasoning  string           `json:"reasoning"`
		Citations  []audit.Citation `json:"citations"`
	}
	if err := json.Unmarshal([]byte(blob), &decoded); err != nil {
		return audit.Judgment{}, fmt.Errorf("parse judgment: %w", err)
	}
	judgment := audit.Judgment{
		Conclusion: audit.NormalizeConclusion(decoded.Conclusion),
		Confidence: clamp01(decoded.Confidence),
		Reasoning:  strings.TrimSpace(decoded.Reasoning),
	}
	for _, citation := range decoded.Citations {
		citation.Quote = strings.TrimSpace(citation.Quote)
		if citation.Quote == "" {
			continue
		}
		citation.File = strings.TrimSpace(citation.File)
		citation.Locator = strings.TrimSpace(citation.Locator)
		judgment.Citations = append(judgment.Citations, citation)
	}
	return judgment, nil
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
