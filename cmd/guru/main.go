package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "guru",
		Short:   "GuruChat - multi-persona chat in the terminal",
		Version: version,
	}

	// bare "guru" opens the chat
	chat := chatCmd()
	rootCmd.RunE = chat.RunE
	rootCmd.Args = cobra.NoArgs
	rootCmd.Flags().AddFlagSet(chat.Flags())

	rootCmd.AddCommand(chat)
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(charactersCmd())
	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(mockServerCmd())
	rootCmd.AddCommand(doctorCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
