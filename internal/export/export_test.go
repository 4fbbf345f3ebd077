package export

import (
	"strings"
	"testing"
	"time"
)

func TestRenderReportHTML(t *testing.T) {
	data := TemplateData{
		Name:        "Website Relaunch",
		Subtitle:    "Q4 marketing push",
		Description: "Rebuild the public site.",
		GeneratedAt: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
		Members:     []string{"maria", "piotr"},
		Tasks: []ReportTask{
			{Name: "Design mockups", Assignee: "maria", Priority: "High", Date: time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC), Done: true},
			{Name: "Write copy", Assignee: "piotr", Priority: "Medium", Date: time.Date(2024, 3, 25, 0, 0, 0, 0, time.UTC), Done: false},
		},
		Messages: []ReportMessage{
			{Author: "maria", Content: "Mockups are ready for review.", Date: time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)},
		},
		OpenCount: 1,
		DoneCount: 1,
	}

	html, err := RenderReportHTML(data)
	if err != nil {
		t.Fatalf("RenderReportHTML failed: %v", err)
	}

	for _, want := range []string{
		"Website Relaunch",
		"Q4 marketing push",
		"Design mockups",
		"Write copy",
		"maria, piotr",
		"Mockups are ready for review.",
		"1 open / 1 done",
		"2024-03-20",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered report missing %q", want)
		}
	}
}

func TestRenderReportHTMLEscapesContent(t *testing.T) {
	data := TemplateData{
		Name:        "<script>alert(1)</script>",
		GeneratedAt: time.Now(),
	}

	html, err := RenderReportHTML(data)
	if err != nil {
		t.Fatalf("RenderReportHTML failed: %v", err)
	}

	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Error("project name must be HTML-escaped in the report")
	}
}

func TestRenderReportHTMLEmptySections(t *testing.T) {
	html, err := RenderReportHTML(TemplateData{Name: "Empty", GeneratedAt: time.Now()})
	if err != nil {
		t.Fatalf("RenderReportHTML failed: %v", err)
	}

	if strings.Contains(html, "<h2>Tasks</h2>") {
		t.Error("task section should be omitted when there are no tasks")
	}
	if strings.Contains(html, "Recent messages") {
		t.Error("message section should be omitted when there are no messages")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Website Relaunch", "Website-Relaunch"},
		{"a/b\\c:d", "abcd"},
		{"", "report"},
		{"!!!", "report"},
		{strings.Repeat("x", 80), strings.Repeat("x", 50)},
	}

	for _, tc := range tests {
		if got := sanitizeFilename(tc.input); got != tc.expected {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"abc", "abc"},
		{"a b", "a%20b"},
		{"a+b", "a%2Bb"},
		{"<p>", "%3Cp%3E"},
	}

	for _, tc := range tests {
		if got := percentEncodeForDataURL(tc.input); got != tc.expected {
			t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}
