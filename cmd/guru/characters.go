package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	cColorReset = "\033[0m"
	cColorGreen = "\033[1;32m"
	cColorDim   = "\033[2m"
)

func charactersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "characters",
		Short: "List the gurus available for a new session",
		Long: `Lists the gurus as TSV:
  id, name, description`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			chars, err := a.client.Characters(cmd.Context())
			if err != nil {
				return err
			}
			if len(chars) == 0 {
				fmt.Fprintln(os.Stderr, "No gurus available.")
				return nil
			}

			color := term.IsTerminal(int(os.Stdout.Fd()))
			for _, c := range chars {
				name, desc := c.Name, oneLine(c.Description)
				if color {
					name = cColorGreen + name + cColorReset
					desc = cColorDim + desc + cColorReset
				}
				fmt.Printf("%s\t%s\t%s\n", c.ID, name, desc)
			}
			return nil
		},
	}
}

// oneLine keeps a value on a single TSV field.
func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\t", " ")
	return strings.ReplaceAll(s, "\n", " ")
}
