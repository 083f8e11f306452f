package markdown

import (
	"errors"
	"strings"
	"testing"

	"github.com/pathwise/pathwise/internal/document"
)

func mustParse(t *testing.T, input string) *Result {
	t.Helper()

	res, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	return res
}

func TestParsePlanScenario(t *testing.T) {
	input := "# Plan\n## Phase 1\n[ ] Task 1\n[x] Task 2\n## Timeline\nDo it weekly."

	res := mustParse(t, input)

	if res.Title != "Plan" {
		t.Errorf("title = %q, want Plan", res.Title)
	}
	if len(res.Doc.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(res.Doc.Sections))
	}

	phase := res.Doc.Sections[0]
	if phase.Title != "Phase 1" || phase.Type != document.SectionPhase || phase.HeadingLevel != 2 {
		t.Errorf("unexpected first section: %+v", phase)
	}
	if len(phase.Items) != 2 {
		t.Fatalf("expected 2 items in phase, got %d", len(phase.Items))
	}
	if phase.Items[0].Type != document.ItemTask || phase.Items[0].IsComplete {
		t.Errorf("Task 1 should be an incomplete task: %+v", phase.Items[0])
	}
	if phase.Items[1].Type != document.ItemTask || !phase.Items[1].IsComplete {
		t.Errorf("Task 2 should be a complete task: %+v", phase.Items[1])
	}

	timeline := res.Doc.Sections[1]
	if timeline.Type != document.SectionTimeline {
		t.Errorf("second section type = %s, want timeline", timeline.Type)
	}
	if len(timeline.Items) != 1 || timeline.Items[0].Type != document.ItemText {
		t.Fatalf("timeline should hold 1 text item: %+v", timeline.Items)
	}
	if timeline.Items[0].Content != "Do it weekly." {
		t.Errorf("text content = %q", timeline.Items[0].Content)
	}

	if got := document.CalculateProgress(res.Doc.Sections); got != 50 {
		t.Errorf("progress = %d, want 50", got)
	}
}

func TestParseStructureCounts(t *testing.T) {
	// N headings (none a leading H1) and M checkboxes must round-trip.
	input := strings.Join([]string{
		"## Alpha",
		"[ ] a1",
		"- [x] a2",
		"### Beta",
		"some context",
		"[X] b1",
		"## Gamma",
		"- just a bullet",
	}, "\n")

	res := mustParse(t, input)

	if len(res.Doc.Sections) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(res.Doc.Sections))
	}

	tasks := 0
	for _, s := range res.Doc.Sections {
		for _, item := range s.Items {
			if item.Type == document.ItemTask {
				tasks++
			}
		}
	}
	if tasks != 3 {
		t.Errorf("expected 3 task items, got %d", tasks)
	}
}

func TestParseLineKinds(t *testing.T) {
	tests := []struct {
		name         string
		line         string
		wantType     document.ItemType
		wantContent  string
		wantComplete bool
	}{
		{"checkbox unchecked", "[ ] read the docs", document.ItemTask, "read the docs", false},
		{"checkbox checked", "[x] read the docs", document.ItemTask, "read the docs", true},
		{"checkbox uppercase", "[X] read the docs", document.ItemTask, "read the docs", true},
		{"checkbox with dash", "- [ ] read the docs", document.ItemTask, "read the docs", false},
		{"checkbox dash no gap", "-[x] read the docs", document.ItemTask, "read the docs", true},
		{"bullet", "- plain bullet", document.ItemText, "plain bullet", false},
		{"plain text", "  indented prose  ", document.ItemText, "indented prose", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustParse(t, "## Section\n"+tt.line)

			items := res.Doc.Sections[0].Items
			if len(items) != 1 {
				t.Fatalf("expected 1 item, got %d", len(items))
			}
			item := items[0]
			if item.Type != tt.wantType {
				t.Errorf("type = %s, want %s", item.Type, tt.wantType)
			}
			if item.Content != tt.wantContent {
				t.Errorf("content = %q, want %q", item.Content, tt.wantContent)
			}
			if item.IsComplete != tt.wantComplete {
				t.Errorf("isComplete = %v, want %v", item.IsComplete, tt.wantComplete)
			}
			if item.ID == "" {
				t.Error("item id not assigned")
			}
		})
	}
}

func TestParseSectionClassification(t *testing.T) {
	tests := []struct {
		heading string
		want    document.SectionType
	}{
		{"## Phase 1: Basics", document.SectionPhase},
		{"## Recommended Resources", document.SectionResources},
		{"## Suggested Timeline", document.SectionTimeline},
		{"## Weekly Goals", document.SectionGeneric},
	}

	for _, tt := range tests {
		res := mustParse(t, tt.heading+"\nfiller")
		if got := res.Doc.Sections[0].Type; got != tt.want {
			t.Errorf("%q classified as %s, want %s", tt.heading, got, tt.want)
		}
	}
}

func TestParseInlineFormatting(t *testing.T) {
	res := mustParse(t, "## Learn **Go** basics\n[ ] read *Effective Go* and `gofmt` docs")

	if got := res.Doc.Sections[0].Title; got != "Learn <strong>Go</strong> basics" {
		t.Errorf("title = %q", got)
	}
	got := res.Doc.Sections[0].Items[0].Content
	want := "read <em>Effective Go</em> and <code>gofmt</code> docs"
	if got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

func TestParseStripsResidualBrackets(t *testing.T) {
	res := mustParse(t, "## Tasks\n[ ] finish [x] markers in text")

	got := res.Doc.Sections[0].Items[0].Content
	if strings.Contains(got, "[x]") || strings.Contains(got, "[ ]") {
		t.Errorf("residual checkbox bracket survived: %q", got)
	}
}

func TestParseDropsPreHeadingLines(t *testing.T) {
	res := mustParse(t, "orphan line\nanother orphan\n## Section\ncontent")

	if len(res.Doc.Sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(res.Doc.Sections))
	}
	if len(res.Doc.Sections[0].Items) != 1 {
		t.Errorf("orphan lines leaked into the section: %+v", res.Doc.Sections[0].Items)
	}
}

func TestParseBlankLinesDoNotCloseSection(t *testing.T) {
	res := mustParse(t, "## Section\nfirst\n\n\nsecond")

	if len(res.Doc.Sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(res.Doc.Sections))
	}
	if len(res.Doc.Sections[0].Items) != 2 {
		t.Errorf("expected 2 items, got %d", len(res.Doc.Sections[0].Items))
	}
}

func TestParseMidDocumentH1IsASection(t *testing.T) {
	res := mustParse(t, "# Title\nintro\n# Big Section\ncontent")

	if res.Title != "Title" {
		t.Errorf("title = %q", res.Title)
	}
	if len(res.Doc.Sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(res.Doc.Sections))
	}
	if res.Doc.Sections[0].HeadingLevel != 1 {
		t.Errorf("heading level = %d, want 1", res.Doc.Sections[0].HeadingLevel)
	}
}

func TestParseDegraded(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"prose without headings", "just some text\nwith no structure"},
		{"headings without items", "## Empty One\n## Empty Two"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Parse(tt.input)
			if !errors.Is(err, ErrDegraded) {
				t.Fatalf("expected ErrDegraded, got %v", err)
			}
			if res == nil || res.Doc == nil || res.Doc.Sections == nil {
				t.Fatal("degraded parse must still return a usable document")
			}
		})
	}
}

func TestParseEmptyInput(t *testing.T) {
	res, err := Parse("")
	if err != nil {
		t.Fatalf("empty input should not be degraded: %v", err)
	}
	if len(res.Doc.Sections) != 0 {
		t.Errorf("expected no sections, got %d", len(res.Doc.Sections))
	}
	if res.Doc.Sections == nil {
		t.Error("sections must be non-nil")
	}
}

// Re-parsing identical input yields identical structure. Ids are random per
// parse and are allowed to differ.
func TestParseIdempotent(t *testing.T) {
	input := "# Plan\n## Phase 1\n[ ] one\n[x] two\n## Resources\n- a book"

	first := mustParse(t, input)
	second := mustParse(t, input)

	if len(first.Doc.Sections) != len(second.Doc.Sections) {
		t.Fatalf("section counts differ: %d vs %d",
			len(first.Doc.Sections), len(second.Doc.Sections))
	}
	for i := range first.Doc.Sections {
		a, b := first.Doc.Sections[i], second.Doc.Sections[i]
		if a.Title != b.Title || a.Type != b.Type || a.HeadingLevel != b.HeadingLevel {
			t.Errorf("section %d differs: %+v vs %+v", i, a, b)
		}
		if len(a.Items) != len(b.Items) {
			t.Fatalf("section %d item counts differ", i)
		}
		for j := range a.Items {
			ai, bi := a.Items[j], b.Items[j]
			if ai.Type != bi.Type || ai.Content != bi.Content || ai.IsComplete != bi.IsComplete {
				t.Errorf("item %d/%d differs: %+v vs %+v", i, j, ai, bi)
			}
		}
	}
}

func TestParseAssignsUniqueIDs(t *testing.T) {
	res := mustParse(t, "## A\n[ ] one\n[ ] two\n## B\n[ ] three")

	seen := make(map[string]bool)
	for _, s := range res.Doc.Sections {
		if seen[s.ID] {
			t.Errorf("duplicate section id %s", s.ID)
		}
		seen[s.ID] = true
		for _, item := range s.Items {
			if seen[item.ID] {
				t.Errorf("duplicate item id %s", item.ID)
			}
			seen[item.ID] = true
		}
	}
}
