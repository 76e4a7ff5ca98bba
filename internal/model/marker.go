package model

// Marker colours used by the calendar.
const (
	StreakColor      = "#6c5ce7"
	EventDotColor    = "#ffd700"
	FriendEventColor = "#00cec9"
)

// Marker is the display style of one calendar day.
type Marker struct {
	Marked        bool   `json:"marked,omitempty"`
	DotColor      string `json:"dotColor,omitempty"`
	Selected      bool   `json:"selected,omitempty"`
	SelectedColor string `json:"selectedColor,omitempty"`
}

// MarkedDates is always derived from progress or events and never stored.
type MarkedDates map[Day]Marker

// Merge overlays other onto m. Streak highlighting and event dots on the same
// day combine into one marker.
func (m MarkedDates) Merge(other MarkedDates) MarkedDates {
	out := make(MarkedDates, len(m)+len(other))
	for d, mk := range m {
		out[d] = mk
	}
	for d, mk := range other {
		cur := out[d]
		if mk.Marked {
			cur.Marked = true
			cur.DotColor = mk.DotColor
		}
		if mk.Selected {
			cur.Selected = true
			cur.SelectedColor = mk.SelectedColor
		}
		out[d] = cur
	}
	return out
}
