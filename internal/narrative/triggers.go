package narrative

import (
	"fmt"
	"strings"
)

// TriggerGameStart fires once at the start of a brand new game, before
// anything has ever been unlocked.
const TriggerGameStart = "game_start"

// categoryTriggerPrefix tags category-entry triggers in the blurb catalog,
// e.g. "category_entered:arcana".
const categoryTriggerPrefix = "category_entered:"

// CategoryTrigger builds the trigger id for entering the named category.
func CategoryTrigger(category string) string {
	return categoryTriggerPrefix + category
}

// CategoryFromTrigger extracts the category name from a category-entry
// trigger id.
func CategoryFromTrigger(trigger string) (string, bool) {
	if !strings.HasPrefix(trigger, categoryTriggerPrefix) {
		return "", false
	}
	name := strings.TrimPrefix(trigger, categoryTriggerPrefix)
	return name, name != ""
}

// TriggerDef is one entry in the fixed, ordered trigger list. Matches
// inspects the metrics delta (and the progress snapshot for one-shot
// eligibility); it must not mutate anything.
type TriggerDef struct {
	ID         string
	Repeatable bool
	Matches    func(prev, cur Metrics, p *Progress) bool
}

// crossed reports a below-to-at-or-above threshold transition. A count
// already past the threshold on both sides never re-fires.
func crossed(prev, cur, threshold int) bool {
	return prev < threshold && cur >= threshold
}

func countTrigger(metric string, read func(Metrics) int, threshold int) TriggerDef {
	id := fmt.Sprintf("%s_%d", metric, threshold)
	if threshold == 1 {
		id = "first_" + firstName(metric)
	}
	return TriggerDef{
		ID: id,
		Matches: func(prev, cur Metrics, _ *Progress) bool {
			return crossed(read(prev), read(cur), threshold)
		},
	}
}

// firstName maps a plural metric name to its "first_x" singular form.
func firstName(metric string) string {
	switch metric {
	case MetricBooksDiscovered:
		return "book_discovered"
	case MetricPuzzlesCompleted:
		return "puzzle_completed"
	case MetricBooksCompleted:
		return "book_completed"
	}
	return metric
}

// milestoneThresholds are the fixed parametrized milestones per metric,
// in evaluation order.
var milestoneThresholds = []struct {
	metric     string
	read       func(Metrics) int
	thresholds []int
}{
	{MetricBooksDiscovered, func(m Metrics) int { return m.BooksDiscovered }, []int{5, 10, 25}},
	{MetricPuzzlesCompleted, func(m Metrics) int { return m.PuzzlesCompleted }, []int{10, 25, 50, 100}},
	{MetricBooksCompleted, func(m Metrics) int { return m.BooksCompleted }, []int{3, 5, 10}},
}

// DefaultTriggers builds the fixed trigger list in its evaluation order:
// game start, crossing-edge firsts, parametrized milestones, then the
// boolean-flag and category-entry triggers. Category triggers come from
// the blurb catalog so content edits can add categories without a code
// change.
func DefaultTriggers(categories []string) []TriggerDef {
	defs := []TriggerDef{
		{
			ID: TriggerGameStart,
			Matches: func(_, _ Metrics, p *Progress) bool {
				return len(p.UnlockedContentIDs) == 0
			},
		},
		countTrigger(MetricBooksDiscovered, func(m Metrics) int { return m.BooksDiscovered }, 1),
		countTrigger(MetricPuzzlesCompleted, func(m Metrics) int { return m.PuzzlesCompleted }, 1),
		countTrigger(MetricBooksCompleted, func(m Metrics) int { return m.BooksCompleted }, 1),
	}

	for _, group := range milestoneThresholds {
		for _, threshold := range group.thresholds {
			if threshold == 1 {
				continue
			}
			defs = append(defs, countTrigger(group.metric, group.read, threshold))
		}
	}

	defs = append(defs, TriggerDef{
		ID: MetricArchiveRevealed,
		Matches: func(prev, cur Metrics, _ *Progress) bool {
			return !prev.ArchiveRevealed && cur.ArchiveRevealed
		},
	})

	for _, category := range categories {
		name := category
		defs = append(defs, TriggerDef{
			ID: CategoryTrigger(name),
			Matches: func(prev, cur Metrics, _ *Progress) bool {
				return cur.CurrentCategory == name && prev.CurrentCategory != name
			},
		})
	}

	return defs
}
