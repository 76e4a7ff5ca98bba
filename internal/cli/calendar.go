package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sakif/waypoint/internal/model"
)

const calendarWidth = 20

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Width(calendarWidth).Align(lipgloss.Center)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	todayStyle = lipgloss.NewStyle().Underline(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(9)
)

// RenderMonth draws the month containing anchor, weeks starting on Monday.
// Streak days are highlighted and days with events carry a dot.
func RenderMonth(anchor, today model.Day, markers model.MarkedDates) string {
	t := anchor.Time()
	first := t.AddDate(0, 0, 1-t.Day())

	var b strings.Builder
	b.WriteString(titleStyle.Render(first.Format("January 2006")))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Mo Tu We Th Fr Sa Su"))
	b.WriteString("\n")

	col := (int(first.Weekday()) + 6) % 7
	b.WriteString(strings.Repeat("   ", col))
	for d := first; d.Month() == first.Month(); d = d.AddDate(0, 0, 1) {
		day := model.DayOf(d)
		b.WriteString(renderCell(d.Day(), day == today, markers[day]))
		col++
		if col == 7 {
			b.WriteString("\n")
			col = 0
		}
	}
	if col != 0 {
		b.WriteString("\n")
	}
	return b.String()
}

func renderCell(n int, isToday bool, mk model.Marker) string {
	num := lipgloss.NewStyle()
	if mk.Selected {
		num = num.Bold(true).
			Background(lipgloss.Color(mk.SelectedColor)).
			Foreground(lipgloss.Color("#ffffff"))
	}
	if isToday {
		num = num.Inherit(todayStyle)
	}

	dot := " "
	if mk.Marked {
		dot = lipgloss.NewStyle().Foreground(lipgloss.Color(mk.DotColor)).Render("•")
	}
	return num.Render(fmt.Sprintf("%2d", n)) + dot
}

func legend() string {
	streak := lipgloss.NewStyle().Background(lipgloss.Color(model.StreakColor)).Render("  ")
	event := lipgloss.NewStyle().Foreground(lipgloss.Color(model.EventDotColor)).Render("•")
	return dimStyle.Render(streak + " streak  " + event + " event")
}
