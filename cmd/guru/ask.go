package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Zuo-Peng/guruchat/internal/api"
	"github.com/Zuo-Peng/guruchat/internal/catalog"
	"github.com/Zuo-Peng/guruchat/internal/render"
	"github.com/Zuo-Peng/guruchat/internal/session"
	"github.com/Zuo-Peng/guruchat/internal/transcript"
)

func askCmd() *cobra.Command {
	var sessionID, style string
	var personas []string
	var resume bool

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message and stream the replies to stdout",
		Long: `Sends a single message without the TUI. Use --persona (repeatable) to start a
new session, or --session / --resume to continue an existing one.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkStyle(style); err != nil {
				return err
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if resume && sessionID == "" {
				if sessionID, err = a.lastSession(); err != nil {
					return err
				}
			}

			plain := !term.IsTerminal(int(os.Stdout.Fd()))
			ctrl := a.controller(style, session.WithObserver(printer(plain)))
			defer ctrl.Close()

			switch {
			case sessionID != "":
				if err := openExisting(ctx, a, ctrl, sessionID); err != nil {
					return err
				}
			case len(personas) > 0:
				chars, err := pickPersonas(ctx, a.client, personas)
				if err != nil {
					return err
				}
				sess, err := ctrl.CreateSession(ctx, chars)
				if err != nil {
					return err
				}
				if err := ctrl.Begin(sess, chars); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Session %s\n", sess.ID)
			default:
				return errors.New("pass --persona to start a session or --session/--resume to continue one")
			}

			err = ctrl.Send(ctx, strings.Join(args, " "))
			fmt.Println()
			return err
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Continue this session")
	cmd.Flags().BoolVar(&resume, "resume", false, "Continue the session the last run ended on")
	cmd.Flags().StringSliceVar(&personas, "persona", nil, "Guru id or name for a new session (repeatable)")
	cmd.Flags().StringVar(&style, "style", "", "Reply style (normal/spicy)")

	return cmd
}

func openExisting(ctx context.Context, a *app, ctrl *session.Controller, id string) error {
	cat := a.catalog()
	if err := cat.Refresh(ctx, a.userID); err != nil {
		return err
	}
	entry, ok := cat.Find(id)
	if !ok {
		return fmt.Errorf("session %s: %w", id, catalog.ErrNotFound)
	}
	return cat.Select(ctx, ctrl, entry)
}

func pickPersonas(ctx context.Context, client *api.Client, wanted []string) ([]api.Character, error) {
	all, err := client.Characters(ctx)
	if err != nil {
		return nil, err
	}
	var out []api.Character
	for _, w := range wanted {
		found := false
		for _, c := range all {
			if c.ID == w || strings.EqualFold(c.Name, w) {
				out = append(out, c)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown guru %q (see guru characters)", w)
		}
	}
	return out, nil
}

// printer streams replies as they arrive, starting a labelled line
// whenever the speaking message changes. The user's own line is not echoed.
func printer(plain bool) session.Observer {
	var last string
	return func(m transcript.Message, appended string) {
		if m.Role == transcript.RoleUser {
			return
		}
		if m.ID != last {
			if last != "" {
				fmt.Println()
			}
			fmt.Print(render.Label(m, plain) + " ")
			last = m.ID
		}
		fmt.Print(appended)
	}
}
