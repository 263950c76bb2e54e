package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/Zuo-Peng/guruchat/internal/catalog"
	"github.com/Zuo-Peng/guruchat/internal/gesture"
)

// pixelsPerCell converts terminal columns into gesture offset units.
const pixelsPerCell = 6

// historyTop is the first screen row of the history list: title (1),
// filter input (1), blank (1).
const historyTop = 3

// historyLine is one screen row of the history list: a group label, an
// entry, or a blank spacer.
type historyLine struct {
	label string
	entry *catalog.Entry
}

func historyLines(buckets []catalog.Bucket) []historyLine {
	var lines []historyLine
	for _, b := range buckets {
		if len(b.Entries) == 0 {
			continue
		}
		if len(lines) > 0 {
			lines = append(lines, historyLine{})
		}
		lines = append(lines, historyLine{label: b.Label})
		for i := range b.Entries {
			lines = append(lines, historyLine{entry: &b.Entries[i]})
		}
	}
	return lines
}

// historyEntries flattens the buckets in display order.
func historyEntries(buckets []catalog.Bucket) []catalog.Entry {
	var out []catalog.Entry
	for _, b := range buckets {
		out = append(out, b.Entries...)
	}
	return out
}

func (m *model) gestureFor(id string) *gesture.Machine {
	g, ok := m.gestures[id]
	if !ok {
		g = &gesture.Machine{}
		m.gestures[id] = g
	}
	return g
}

// renderHistory renders the history rows with scrolling.
func (m model) renderHistory(width, height int) string {
	lines := historyLines(m.filtered())
	if len(lines) == 0 {
		return lipgloss.NewStyle().
			Foreground(colorDim).
			Width(width).
			Height(height).
			Align(lipgloss.Center, lipgloss.Center).
			Render("No chats today or yesterday")
	}

	var selectedID string
	if entries := historyEntries(m.filtered()); m.histCursor < len(entries) {
		selectedID = entries[m.histCursor].ID
	}

	var rows []string
	for i, l := range lines {
		if i < m.histOffset {
			continue
		}
		if len(rows) >= height {
			break
		}
		switch {
		case l.entry != nil:
			rows = append(rows, m.formatEntry(*l.entry, width, l.entry.ID == selectedID))
		case l.label != "":
			rows = append(rows, styleGroupLabel.Render(l.label))
		default:
			rows = append(rows, "")
		}
	}
	for len(rows) < height {
		rows = append(rows, strings.Repeat(" ", width))
	}
	return strings.Join(rows, "\n")
}

// formatEntry draws one row shifted right by its gesture offset, with the
// delete control filling the uncovered cells.
func (m model) formatEntry(e catalog.Entry, width int, selected bool) string {
	var shift int
	if g, ok := m.gestures[e.ID]; ok {
		shift = int(g.Offset()) / pixelsPerCell
	}

	var control string
	if shift > 0 {
		label := ""
		if shift >= len(" delete ") {
			label = " delete "
		}
		control = styleDelete.Render(label + strings.Repeat(" ", shift-len(label)))
	}

	title := strings.ReplaceAll(m.catalog.DisplayTitle(e), "\n", " ")
	prefix := "  "
	if selected {
		prefix = "> "
	}
	date := e.CreatedAt.Local().Format("15:04")
	titleMax := width - shift - len(prefix) - len(date) - 2
	if titleMax < 0 {
		titleMax = 0
	}
	if runewidth.StringWidth(title) > titleMax {
		title = runewidth.Truncate(title, titleMax, "…")
	}
	pad := titleMax - runewidth.StringWidth(title)
	if pad < 0 {
		pad = 0
	}

	row := prefix + title + strings.Repeat(" ", pad) + "  " + date
	if selected {
		row = styleListSelected.Render(row)
	} else {
		row = styleListNormal.Render(row)
	}
	return control + row
}

// adjustHistoryScroll keeps the cursor row visible.
func (m *model) adjustHistoryScroll(height int) {
	lines := historyLines(m.filtered())
	entries := historyEntries(m.filtered())
	if m.histCursor >= len(entries) {
		return
	}
	id := entries[m.histCursor].ID
	row := 0
	for i, l := range lines {
		if l.entry != nil && l.entry.ID == id {
			row = i
			break
		}
	}
	if row < m.histOffset {
		m.histOffset = row
	}
	if height > 0 && row >= m.histOffset+height {
		m.histOffset = row - height + 1
	}
}

// historyHit maps a screen row to the entry drawn there.
func (m model) historyHit(y int) (catalog.Entry, bool) {
	if y < historyTop || y >= historyTop+m.panelHeight() {
		return catalog.Entry{}, false
	}
	lines := historyLines(m.filtered())
	i := m.histOffset + y - historyTop
	if i < 0 || i >= len(lines) || lines[i].entry == nil {
		return catalog.Entry{}, false
	}
	return *lines[i].entry, true
}
