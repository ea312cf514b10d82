package narrative

import "sort"

// Bound is an inclusive [Min,Max] window over a metric. A nil end is
// unbounded on that side.
type Bound struct {
	Min *int `yaml:"min"`
	Max *int `yaml:"max"`
}

// Contains reports whether the value lies within the bound.
func (b Bound) Contains(value int) bool {
	if b.Min != nil && value < *b.Min {
		return false
	}
	if b.Max != nil && value > *b.Max {
		return false
	}
	return true
}

// Rule is one declarative story-beat advancement. It applies only while
// the session sits at FromBeat; lower Priority is evaluated first, with
// declaration order breaking ties.
type Rule struct {
	FromBeat    Beat             `yaml:"from_beat"`
	ToBeat      Beat             `yaml:"to_beat"`
	Priority    int              `yaml:"priority"`
	Description string           `yaml:"description"`
	Conditions  map[string]Bound `yaml:"conditions"`
}

// Matches reports whether every declared condition holds for the metrics.
// Conditions naming unknown metrics never hold, so a typo in the catalog
// disables the rule rather than silently passing.
func (r *Rule) Matches(m Metrics) bool {
	for name, bound := range r.Conditions {
		value, ok := m.Value(name)
		if !ok {
			return false
		}
		if !bound.Contains(value) {
			return false
		}
	}
	return true
}

// CheckBeatAdvancement returns the first rule matching the current beat
// and metrics, or nil. Rules whose ToBeat would move the story backward
// are skipped: advancement is monotonic.
func CheckBeatAdvancement(p *Progress, m Metrics, rules []Rule) *Rule {
	candidates := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.FromBeat == p.CurrentBeat {
			candidates = append(candidates, rule)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority < candidates[j].Priority
	})
	for i := range candidates {
		rule := &candidates[i]
		if !rule.ToBeat.After(p.CurrentBeat) {
			continue
		}
		if rule.Matches(m) {
			return rule
		}
	}
	return nil
}
