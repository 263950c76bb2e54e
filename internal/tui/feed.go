package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/Zuo-Peng/guruchat/internal/api"
	"github.com/Zuo-Peng/guruchat/internal/transcript"
)

// renderFeed draws the transcript for the chat viewport.
func renderFeed(msgs []transcript.Message, typing []string, width int) string {
	if width < 10 {
		width = 10
	}
	open := make(map[string]bool, len(typing))
	for _, id := range typing {
		open[id] = true
	}
	body := lipgloss.NewStyle().Width(width - 2).PaddingLeft(2)

	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		var author string
		switch msg.Role {
		case transcript.RoleUser:
			author = styleAuthorUser.Render(msg.AuthorName)
		case transcript.RoleSystem:
			author = styleAuthorSystem.Render(msg.AuthorName)
		default:
			author = styleAuthorPersona.Render(msg.AuthorName)
		}
		if open[msg.ID] {
			author += " " + styleTyping.Render("typing…")
		}
		b.WriteString(author)
		b.WriteString("\n")
		b.WriteString(body.Render(msg.Text))
		b.WriteString("\n")
	}
	return b.String()
}

// newViewport creates a new viewport model with the given dimensions.
func newViewport(width, height int) viewport.Model {
	vp := viewport.New(width, height)
	vp.Style = stylePanelBorder
	return vp
}

// renderPersona draws one row of the persona picker.
func renderPersona(c api.Character, width int, picked, selected bool) string {
	mark := "[ ]"
	if picked {
		mark = "[x]"
	}
	line := fmt.Sprintf("%s %s", mark, c.Name)
	room := width - 2 - runewidth.StringWidth(line) - 2
	if desc := strings.ReplaceAll(c.Description, "\n", " "); desc != "" && room > 0 {
		desc = runewidth.Truncate(desc, room, "…")
		line += "  " + lipgloss.NewStyle().Foreground(colorDim).Render(desc)
	}
	if selected {
		return styleListSelected.Render("> ") + line
	}
	return "  " + line
}
