package narrative

// Beat is one phase of the fixed story arc. Beats are ordered; progression
// through them is monotonic under rule evaluation.
type Beat string

const (
	BeatHook             Beat = "hook"
	BeatIncitingIncident Beat = "inciting_incident"
	BeatFirstPlotPoint   Beat = "first_plot_point"
	BeatMidpoint         Beat = "midpoint"
	BeatSecondPlotPoint  Beat = "second_plot_point"
	BeatClimax           Beat = "climax"
	BeatResolution       Beat = "resolution"
)

var beatOrder = []Beat{
	BeatHook,
	BeatIncitingIncident,
	BeatFirstPlotPoint,
	BeatMidpoint,
	BeatSecondPlotPoint,
	BeatClimax,
	BeatResolution,
}

// FirstBeat returns the beat every new session starts at.
func FirstBeat() Beat {
	return beatOrder[0]
}

// Index returns the position of the beat in the story arc. Unknown beats
// sort after every known beat.
func (b Beat) Index() int {
	for i, known := range beatOrder {
		if known == b {
			return i
		}
	}
	return len(beatOrder)
}

// Known reports whether the beat is part of the story arc.
func (b Beat) Known() bool {
	return b.Index() < len(beatOrder)
}

// Before reports whether b comes strictly earlier in the arc than other.
func (b Beat) Before(other Beat) bool {
	return b.Index() < other.Index()
}

// After reports whether b comes strictly later in the arc than other.
func (b Beat) After(other Beat) bool {
	return b.Index() > other.Index()
}
