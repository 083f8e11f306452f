// Package markdown converts LLM-produced plan markdown into a structured
// document.
//
// The parser is line-oriented and deliberately forgiving: malformed input
// never fails hard, it just yields fewer sections. Callers that need to react
// to unusable output check for ErrDegraded, which is returned alongside a
// still-valid (possibly empty) document.
package markdown

import (
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/pathwise/pathwise/internal/document"
)

// ErrDegraded signals that non-empty input produced zero sections or zero
// items. It is a warning, not a hard failure: the returned document is valid
// and callers may still use it or fall back to a re-parse.
var ErrDegraded = errors.New("markdown: degraded parse")

// Result is the outcome of parsing one markdown document.
type Result struct {
	// Title is the text of a leading level-1 heading, if the document has
	// one. It is surfaced separately and never stored as a section.
	Title string

	// Doc holds the parsed sections. Doc.Sections is never nil.
	Doc *document.Document
}

var (
	headingRe  = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	checkboxRe = regexp.MustCompile(`^(?:-\s*)?\[([ xX])\]\s*(.*)$`)
	boldRe     = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe   = regexp.MustCompile(`\*(.+?)\*`)
	codeRe     = regexp.MustCompile("`(.+?)`")
)

// Parse converts raw markdown into a structured document.
//
// The first line, when it is a level-1 heading, becomes the Result title and
// is excluded from section scanning. Every further heading (1-6 hashes) opens
// a new section; checkbox lines become task items, bullet and plain lines
// become text items. Lines before the first heading have no section to attach
// to and are dropped. Blank lines are skipped but do not close a section.
//
// The returned document is always usable; the only possible error is
// ErrDegraded.
func Parse(markdown string) (*Result, error) {
	res := &Result{Doc: document.New(1)}

	lines := strings.Split(markdown, "\n")
	start := 0

	if len(lines) > 0 {
		if m := headingRe.FindStringSubmatch(strings.TrimSpace(lines[0])); m != nil && len(m[1]) == 1 {
			res.Title = formatInline(m[2])
			start = 1
		}
	}

	var current *document.Section
	flush := func() {
		if current != nil {
			res.Doc.Sections = append(res.Doc.Sections, *current)
			current = nil
		}
	}

	for _, raw := range lines[start:] {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := headingRe.FindStringSubmatch(line); m != nil {
			flush()
			current = &document.Section{
				ID:           uuid.NewString(),
				HeadingLevel: len(m[1]),
				Title:        formatInline(m[2]),
				Type:         classifySection(m[2]),
				Items:        []document.Item{},
			}
			continue
		}

		if current == nil {
			// No open section to attach to.
			continue
		}

		if m := checkboxRe.FindStringSubmatch(line); m != nil {
			current.Items = append(current.Items, document.Item{
				ID:         uuid.NewString(),
				Type:       document.ItemTask,
				Content:    formatInline(m[2]),
				IsComplete: m[1] == "x" || m[1] == "X",
			})
			continue
		}

		content := line
		if rest, ok := strings.CutPrefix(line, "- "); ok {
			content = rest
		}
		current.Items = append(current.Items, document.Item{
			ID:      uuid.NewString(),
			Type:    document.ItemText,
			Content: formatInline(content),
		})
	}
	flush()

	if strings.TrimSpace(markdown) != "" && degraded(res.Doc) {
		return res, ErrDegraded
	}
	return res, nil
}

// degraded reports whether the parse yielded no sections or no items at all.
func degraded(doc *document.Document) bool {
	if len(doc.Sections) == 0 {
		return true
	}
	for _, s := range doc.Sections {
		if len(s.Items) > 0 {
			return false
		}
	}
	return true
}

// classifySection maps a heading to a section type by keyword.
func classifySection(title string) document.SectionType {
	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, "phase"):
		return document.SectionPhase
	case strings.Contains(lower, "resource"):
		return document.SectionResources
	case strings.Contains(lower, "timeline"):
		return document.SectionTimeline
	default:
		return document.SectionGeneric
	}
}

// formatInline applies the inline formatting transform to item content and
// section titles: **bold**, *italic* and `code` become HTML-safe markup, and
// any checkbox bracket that survived extraction is stripped.
func formatInline(s string) string {
	s = strings.TrimSpace(s)
	s = boldRe.ReplaceAllString(s, "<strong>$1</strong>")
	s = italicRe.ReplaceAllString(s, "<em>$1</em>")
	s = codeRe.ReplaceAllString(s, "<code>$1</code>")
	s = strings.ReplaceAll(s, "[ ]", "")
	s = strings.ReplaceAll(s, "[x]", "")
	s = strings.ReplaceAll(s, "[X]", "")
	return strings.TrimSpace(s)
}
