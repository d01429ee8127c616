// File path: internal/tasks/tasks_test.go
package tasks

import (
	"strings"
	"testing"
)

func TestCatalogContents(t *testing.T) {
	catalog := Catalog()
	if len(catalog) != 8 {
		t.Fatalf("expected 8 tasks, got %d", len(catalog))
	}
	seen := make(map[string]struct{})
	for _, task := range catalog {
		if task.ID == "" || task.Name == "" || task.Description == "" {
			t.Fatalf("task %+v missing metadata", task)
		}
		if _, dup := seen[task.ID]; dup {
			t.Fatalf("duplicate task id %s", task.ID)
		}
		seen[task.ID] = struct{}{}
	}
}

func TestLookupCaseInsensitive(t *testing.T) {
	task, ok := Lookup(" a4 ")
	if !ok {
		t.Fatalf("expected lookup to find a4")
	}
	if task.ID != "A4" {
		t.Fatalf("expected A4, got %s", task.ID)
	}
	if _, ok := Lookup("Z9"); ok {
		t.Fatalf("expected lookup miss for Z9")
	}
}

func TestEligibility(t *testing.T) {
	imageTask, ok := Lookup("A2")
	if !ok {
		t.Fatalf("expected A2 in catalog")
	}
	if imageTask.Eligible(false) {
		t.Fatalf("A2 should be ineligible without images")
	}
	if !imageTask.Eligible(true) {
		t.Fatalf("A2 should be eligible with images")
	}
	textTask, _ := Lookup("A1")
	if !textTask.Eligible(false) {
		t.Fatalf("A1 should always be eligible")
	}
}

func TestRenderIncludesContext(t *testing.T) {
	task, _ := Lookup("A5")
	prompt, err := task.Render(
		"Monthly bank reconciliations are reviewed and approved.",
		"Inspect the January reconciliation for reviewer sign-off.",
		"FY2024",
		"none",
		"[Evidence 1] File: recon.pdf | Kind: pdf\nReviewed by J. Smith",
	)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{
		"Monthly bank reconciliations",
		"Inspect the January reconciliation",
		"FY2024",
		"recon.pdf",
		"uncovered steps",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestCatalogPrompt(t *testing.T) {
	prompt := CatalogPrompt()
	if !strings.HasPrefix(prompt, "Available tasks:\n") {
		t.Fatalf("unexpected prompt prefix: %q", prompt[:30])
	}
	for _, id := range []string{"A1", "A2", "A3", "A4", "A5", "A6", "A7", "A8"} {
		if !strings.Contains(prompt, "- "+id+" (") {
			t.Fatalf("catalog prompt missing %s:\n%s", id, prompt)
		}
	}
	if !strings.Contains(prompt, "Requires image evidence.") {
		t.Fatalf("catalog prompt should flag image-only tasks:\n%s", prompt)
	}
}
