package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/Zuo-Peng/guruchat/internal/api"
	"github.com/Zuo-Peng/guruchat/internal/catalog"
	"github.com/Zuo-Peng/guruchat/internal/session"
	"github.com/Zuo-Peng/guruchat/internal/stream"
)

// Commands only touch the network. Their results come back as messages and
// are applied to the engine in Update.

type bootMsg struct {
	characters  []api.Character
	sessions    []api.Session
	err         error
	sessionsErr error
}

// startedMsg and loadedMsg carry the request token they were issued with;
// only the latest one may switch the session.
type startedMsg struct {
	seq        int
	sess       api.Session
	characters []api.Character
	err        error
}

type turnOpenedMsg struct {
	turn *session.Turn
	err  error
}

type streamEventMsg struct {
	turn *session.Turn
	ev   stream.Event
	err  error
}

type historyMsg struct {
	sessions []api.Session
	err      error
}

type loadedMsg struct {
	seq    int
	entry  catalog.Entry
	stored []api.StoredMessage
	err    error
}

type deletedMsg struct {
	id  string
	err error
}

type renamedMsg struct {
	id    string
	title string
	err   error
}

// bootCmd fetches the personas and the session list side by side. A failed
// session list does not hold up the personas.
func bootCmd(ctx context.Context, d Deps) tea.Cmd {
	return func() tea.Msg {
		var msg bootMsg
		var g errgroup.Group
		g.Go(func() error {
			chars, err := d.Personas.Characters(ctx)
			msg.characters = chars
			return err
		})
		g.Go(func() error {
			msg.sessions, msg.sessionsErr = d.Catalog.Fetch(ctx, d.Controller.UserID())
			return nil
		})
		msg.err = g.Wait()
		return msg
	}
}

func startCmd(ctx context.Context, c *session.Controller, seq int, chars []api.Character) tea.Cmd {
	return func() tea.Msg {
		sess, err := c.CreateSession(ctx, chars)
		return startedMsg{seq: seq, sess: sess, characters: chars, err: err}
	}
}

func openTurnCmd(t *session.Turn) tea.Cmd {
	return func() tea.Msg {
		return turnOpenedMsg{turn: t, err: t.Open()}
	}
}

func nextEventCmd(t *session.Turn) tea.Cmd {
	return func() tea.Msg {
		ev, err := t.Next()
		return streamEventMsg{turn: t, ev: ev, err: err}
	}
}

func historyCmd(ctx context.Context, cat *catalog.Catalog, userID string) tea.Cmd {
	return func() tea.Msg {
		sessions, err := cat.Fetch(ctx, userID)
		return historyMsg{sessions: sessions, err: err}
	}
}

func loadCmd(ctx context.Context, c *session.Controller, seq int, entry catalog.Entry) tea.Cmd {
	return func() tea.Msg {
		stored, err := c.FetchHistory(ctx, entry.ID)
		return loadedMsg{seq: seq, entry: entry, stored: stored, err: err}
	}
}

func deleteCmd(ctx context.Context, client catalog.API, id string) tea.Cmd {
	return func() tea.Msg {
		return deletedMsg{id: id, err: client.DeleteSession(ctx, id)}
	}
}

func renameCmd(ctx context.Context, client catalog.API, id, title string) tea.Cmd {
	return func() tea.Msg {
		_, err := client.RenameSession(ctx, id, title)
		return renamedMsg{id: id, title: title, err: err}
	}
}
