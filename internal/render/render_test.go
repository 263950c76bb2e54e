package render

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"

	"github.com/Zuo-Peng/guruchat/internal/transcript"
)

func TestWrapLineSkipsEscapes(t *testing.T) {
	line := colorUser + "abcdef" + colorReset
	got := wrapLine(line, 4)
	assert.Equal(t, []string{colorUser + "abcd", "ef" + colorReset}, got)
}

func TestWrapLineWideRunes(t *testing.T) {
	got := wrapLine("가나다라", 5)
	assert.Len(t, got, 2)
	for _, l := range got {
		assert.LessOrEqual(t, runewidth.StringWidth(l), 5)
	}
}

func TestTranscriptPlain(t *testing.T) {
	msgs := []transcript.Message{
		{ID: "1", Role: transcript.RoleUser, AuthorName: "You", Text: "Hello"},
		{ID: "2", Role: transcript.RolePersona, AuthorName: "Ada", Text: "Hi\nthere"},
	}
	got := Transcript(msgs, Options{Title: "New Chat", Plain: true})
	want := strings.Join([]string{
		"--- New Chat ---",
		"You >",
		"  Hello",
		"",
		"Ada >",
		"  Hi",
		"  there",
		"",
		"",
	}, "\n")
	assert.Equal(t, want, got)
}

func TestTranscriptEmpty(t *testing.T) {
	assert.Equal(t, "(empty session)\n", Transcript(nil, Options{Plain: true}))
}

func TestHighlight(t *testing.T) {
	msgs := []transcript.Message{{Role: transcript.RoleSystem, AuthorName: "System", Text: "Bitcoin bit"}}
	got := Transcript(msgs, Options{Query: "BIT"})
	assert.Contains(t, got, colorBoldRed+"Bit"+colorReset+"coin "+colorBoldRed+"bit"+colorReset)
	assert.Contains(t, got, colorSystem+"System >"+colorReset)
}

func TestLabelFallsBackToRole(t *testing.T) {
	assert.Equal(t, "PERSONA >", Label(transcript.Message{Role: transcript.RolePersona}, true))
}
