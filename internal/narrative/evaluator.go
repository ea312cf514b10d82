// Package narrative decides when the story advances: it derives metrics
// from session progress, matches them against the declarative progression
// rules, and fires one-shot triggers that unlock authored blurbs.
package narrative

// Firing is a matched trigger together with the blurb it unlocks.
type Firing struct {
	Trigger string
	Content *Blurb
}

// Evaluator evaluates progression rules and triggers against metrics.
// Constructed once per process from the loaded catalog; all methods are
// synchronous and side-effect-free.
type Evaluator struct {
	catalog  *Catalog
	triggers []TriggerDef
}

// NewEvaluator builds an evaluator over the catalog. A nil catalog acts
// as empty: no rules or triggers ever match.
func NewEvaluator(catalog *Catalog) *Evaluator {
	if catalog == nil {
		catalog = &Catalog{}
	}
	return &Evaluator{
		catalog:  catalog,
		triggers: DefaultTriggers(catalog.Categories()),
	}
}

// CheckBeatAdvancement returns the first progression rule matching the
// session's current beat and metrics, or nil. The caller applies the
// match by moving the session to the rule's ToBeat.
func (e *Evaluator) CheckBeatAdvancement(p *Progress, m Metrics) *Rule {
	return CheckBeatAdvancement(p, m, e.catalog.Rules)
}

// CheckTrigger returns the first unfired trigger matching the metrics
// delta, paired with its eligible blurb, or nil. At most one trigger
// fires per call: when a single update crosses several thresholds the
// later ones wait for the next evaluation. A matching trigger with no
// blurb eligible at the current beat is skipped unfired so it can fire
// later, once the story has advanced far enough for its content.
func (e *Evaluator) CheckTrigger(p *Progress, prev, cur Metrics) *Firing {
	for _, def := range e.triggers {
		if p.HasFired(def.ID) && !def.Repeatable {
			continue
		}
		if !def.Matches(prev, cur, p) {
			continue
		}
		content := e.catalog.ContentFor(def.ID, p.CurrentBeat)
		if content == nil {
			continue
		}
		return &Firing{Trigger: def.ID, Content: content}
	}
	return nil
}

// Catalog exposes the loaded catalog for read-only lookups.
func (e *Evaluator) Catalog() *Catalog {
	return e.catalog
}
