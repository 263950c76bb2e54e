package main

import (
	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/guruchat/internal/tui"
)

func chatCmd() *cobra.Command {
	var sessionID, style string
	var resume bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat",
		Long:  `Opens the chat TUI. Pick up to three gurus on the welcome screen, or reopen a past session from the history panel (ctrl+h).`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkStyle(style); err != nil {
				return err
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if resume && sessionID == "" {
				if sessionID, err = a.lastSession(); err != nil {
					return err
				}
			}

			return tui.Run(cmd.Context(), tui.Deps{
				Personas:   a.client,
				Client:     a.client,
				Controller: a.controller(style),
				Catalog:    a.catalog(),
				Resume:     sessionID,
				Log:        a.log.Named("tui"),
			})
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Open this session instead of the welcome screen")
	cmd.Flags().BoolVar(&resume, "resume", false, "Reopen the session the last run ended on")
	cmd.Flags().StringVar(&style, "style", "", "Reply style (normal/spicy)")

	return cmd
}
