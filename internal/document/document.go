// Package document defines the structured representation of a learning plan.
//
// A plan's markdown content is parsed into a Document: an ordered list of
// heading-delimited Sections, each holding an ordered list of Items. Items are
// either completable tasks or inert text lines. The Document carries a version
// stamp used for optimistic concurrency control by the store and sync layers.
package document

import (
	"fmt"
)

// SectionType classifies a section by its heading keyword.
type SectionType string

const (
	// SectionPhase is a learning phase ("Phase 1: Basics").
	SectionPhase SectionType = "phase"
	// SectionResources lists study resources.
	SectionResources SectionType = "resources"
	// SectionTimeline describes scheduling guidance.
	SectionTimeline SectionType = "timeline"
	// SectionGeneric is any other heading.
	SectionGeneric SectionType = "section"
)

// ItemType distinguishes completable tasks from plain text lines.
type ItemType string

const (
	// ItemTask is a checkbox line with completion state.
	ItemTask ItemType = "task"
	// ItemText is an inert text line with no completion state.
	ItemText ItemType = "text"
)

// Item is a single line-level unit within a section.
type Item struct {
	ID      string   `json:"id"`
	Type    ItemType `json:"type"`
	Content string   `json:"content"`

	// IsComplete is meaningful only when Type == ItemTask.
	IsComplete bool `json:"isComplete"`
}

// Section is a heading-delimited grouping of items.
type Section struct {
	ID           string      `json:"id"`
	HeadingLevel int         `json:"headingLevel"`
	Title        string      `json:"title"`
	Type         SectionType `json:"type"`
	Items        []Item      `json:"items"`
}

// Document is the structured content of a plan.
//
// Version starts at 1 when the document is first structured and is incremented
// on every accepted mutation. A write is accepted only if the writer's observed
// version still matches the stored version (see internal/store).
type Document struct {
	Sections []Section `json:"sections"`
	Version  int       `json:"version"`
}

// New returns an empty document at the given version.
// Sections is non-nil so callers never need a nil check.
func New(version int) *Document {
	return &Document{
		Sections: []Section{},
		Version:  version,
	}
}

// Validate checks structural invariants on the document.
func (d *Document) Validate() error {
	if d.Version < 0 {
		return fmt.Errorf("version must be non-negative (got %d)", d.Version)
	}
	for i, s := range d.Sections {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("section %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks structural invariants on a section.
func (s *Section) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if s.HeadingLevel < 1 || s.HeadingLevel > 6 {
		return fmt.Errorf("heading level must be between 1 and 6 (got %d)", s.HeadingLevel)
	}
	switch s.Type {
	case SectionPhase, SectionResources, SectionTimeline, SectionGeneric:
	default:
		return fmt.Errorf("unknown section type %q", s.Type)
	}
	for i, item := range s.Items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks structural invariants on an item.
func (it *Item) Validate() error {
	if it.ID == "" {
		return fmt.Errorf("id is required")
	}
	switch it.Type {
	case ItemTask, ItemText:
	default:
		return fmt.Errorf("unknown item type %q", it.Type)
	}
	if it.Type == ItemText && it.IsComplete {
		return fmt.Errorf("text items carry no completion state")
	}
	return nil
}

// FindSection returns the section with the given id, or nil.
func (d *Document) FindSection(sectionID string) *Section {
	for i := range d.Sections {
		if d.Sections[i].ID == sectionID {
			return &d.Sections[i]
		}
	}
	return nil
}

// FindItem returns the item with the given id, or nil.
func (s *Section) FindItem(itemID string) *Item {
	for i := range s.Items {
		if s.Items[i].ID == itemID {
			return &s.Items[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the document.
// Mutation paths copy before modifying so cached reads stay untouched.
func (d *Document) Clone() *Document {
	out := &Document{
		Sections: make([]Section, len(d.Sections)),
		Version:  d.Version,
	}
	for i, s := range d.Sections {
		cp := s
		cp.Items = make([]Item, len(s.Items))
		copy(cp.Items, s.Items)
		out.Sections[i] = cp
	}
	return out
}
