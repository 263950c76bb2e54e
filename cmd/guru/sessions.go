package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Zuo-Peng/guruchat/internal/catalog"
	"github.com/Zuo-Peng/guruchat/internal/render"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List, show, rename and delete past sessions",
	}
	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionsShowCmd())
	cmd.AddCommand(sessionsRenameCmd())
	cmd.AddCommand(sessionsDeleteCmd())
	return cmd
}

func sessionsListCmd() *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List today's and yesterday's sessions, newest first",
		Long: `Lists sessions grouped by day. When stdout is not a terminal the output is TSV:
  sessionID, day, createdAt, title`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			cat := a.catalog()
			if err := cat.Refresh(cmd.Context(), a.userID); err != nil {
				return err
			}
			buckets := cat.Filter(filter)

			tty := term.IsTerminal(int(os.Stdout.Fd()))
			empty := true
			for _, b := range buckets {
				if len(b.Entries) == 0 {
					continue
				}
				empty = false
				if tty {
					fmt.Printf("%s%s%s\n", cColorGreen, b.Label, cColorReset)
				}
				for _, e := range b.Entries {
					title := oneLine(cat.DisplayTitle(e))
					at := e.CreatedAt.Local().Format("15:04")
					if tty {
						fmt.Printf("  %s  %s%s%s  %s%s%s\n", title, cColorDim, at, cColorReset, cColorDim, e.ID, cColorReset)
						continue
					}
					fmt.Printf("%s\t%s\t%s\t%s\n", e.ID, b.Label, e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), title)
				}
			}
			if empty {
				fmt.Fprintln(os.Stderr, "No chats today or yesterday.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "Only titles containing this text (case-insensitive)")

	return cmd
}

func sessionsShowCmd() *cobra.Command {
	var width int
	var query string

	cmd := &cobra.Command{
		Use:   "show <sessionID>",
		Short: "Print the stored transcript of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			cat := a.catalog()
			if err := cat.Refresh(cmd.Context(), a.userID); err != nil {
				return err
			}
			entry, ok := cat.Find(args[0])
			if !ok {
				return fmt.Errorf("session %s: %w", args[0], catalog.ErrNotFound)
			}

			ctrl := a.controller("")
			if err := cat.Select(cmd.Context(), ctrl, entry); err != nil {
				return err
			}

			plain := !term.IsTerminal(int(os.Stdout.Fd()))
			if width == 0 && !plain {
				if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
					width = w
				}
			}
			fmt.Print(render.Transcript(ctrl.Messages(), render.Options{
				Title: cat.DisplayTitle(entry),
				Width: width,
				Query: query,
				Plain: plain,
			}))
			return nil
		},
	}

	cmd.Flags().IntVar(&width, "width", 0, "Wrap width (0 = terminal width)")
	cmd.Flags().StringVar(&query, "query", "", "Highlight these terms")

	return cmd
}

func sessionsRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <sessionID> <title>",
		Short: "Rename a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			cat := a.catalog()
			if err := cat.Refresh(cmd.Context(), a.userID); err != nil {
				return err
			}
			title := strings.Join(args[1:], " ")
			if err := cat.Rename(cmd.Context(), args[0], title); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Renamed %s to %q\n", args[0], strings.TrimSpace(title))
			return nil
		},
	}
}

func sessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <sessionID>...",
		Short: "Delete sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			cat := a.catalog()
			if err := cat.Refresh(cmd.Context(), a.userID); err != nil {
				return err
			}
			for _, id := range args {
				if err := cat.Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Deleted %s\n", id)
			}
			return nil
		},
	}
}
