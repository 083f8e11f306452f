package document

import "math"

// CalculateProgress returns the completion percentage across all task items.
//
// The result is round(100 * done / total) for total > 0, and 0 when the
// document has no task items at all. Text items never count.
func CalculateProgress(sections []Section) int {
	var total, done int
	for _, s := range sections {
		for _, item := range s.Items {
			if item.Type != ItemTask {
				continue
			}
			total++
			if item.IsComplete {
				done++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}
