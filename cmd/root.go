package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/shobhitrajxyz/anonymate-app/internal/ui"
	"github.com/shobhitrajxyz/anonymate-app/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "anonymate",
	Short: "Anonymous one-to-one chat brokered over WebSockets and WebRTC",
	Long: `anonymate pairs strangers for one-to-one conversations.

The broker (anonymate serve) keeps a queue of people waiting for a partner,
pairs them, and relays the WebRTC negotiation between the two. Conversations
themselves travel directly between the peers over a data channel.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
