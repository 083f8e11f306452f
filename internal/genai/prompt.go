package genai

import (
	"fmt"
	"strings"
)

// BuildPlanPrompt constructs the generation prompt for a learning-plan topic.
//
// The prompt pins down the markdown shape the parser expects: a single H1
// title, phase/resources/timeline headings, and checkbox task lines.
func BuildPlanPrompt(topic string) string {
	topic = strings.TrimSpace(topic)

	return fmt.Sprintf(`Create a practical learning plan for the following topic.

Topic: %s

Format the plan as markdown with exactly this structure:
- The first line is a level-1 heading with the plan title, e.g. "# Learning Plan: %s"
- Organize the work into numbered phase sections ("## Phase 1: ...", "## Phase 2: ...")
- Each phase contains 3-6 concrete tasks as unchecked checkboxes: "[ ] task description"
- Add a "## Resources" section listing books, courses or sites as plain bullets
- Add a "## Timeline" section with short prose describing a realistic pace

Rules:
- Every task must be a single line starting with "[ ]"
- Do not pre-check any checkbox
- Keep task descriptions actionable and specific
- Output only the markdown plan, no commentary before or after`, topic, topic)
}
