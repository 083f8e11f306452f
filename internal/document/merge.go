package document

// Merge reconciles two divergent versions of the same document.
//
// It is used when a writer discovers the stored version has advanced past the
// version it last observed. The policy is: structure wins from incoming,
// completion state wins from base. The incoming document is authoritative for
// which sections and items exist, their order, titles and content; each task
// item's IsComplete flag is overridden by the matching item in base when that
// item id exists there. Items only present in incoming keep incoming's state;
// items only present in base are dropped.
//
// The join key is Item.ID, so the policy is only safe across re-fetches of the
// same stored document, where ids are stable. It is a task-state merge, not a
// general document diff: conflicting title or content edits resolve to
// incoming wholesale.
//
// Merge does not touch Version and does not recalculate progress; both are the
// caller's responsibility.
func Merge(base, incoming *Document) *Document {
	merged := incoming.Clone()

	completion := make(map[string]bool)
	for _, s := range base.Sections {
		for _, item := range s.Items {
			if item.Type == ItemTask {
				completion[item.ID] = item.IsComplete
			}
		}
	}

	for si := range merged.Sections {
		items := merged.Sections[si].Items
		for ii := range items {
			if items[ii].Type != ItemTask {
				continue
			}
			if done, ok := completion[items[ii].ID]; ok {
				items[ii].IsComplete = done
			}
		}
	}

	return merged
}
