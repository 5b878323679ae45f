package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X .../cmd.Version=...".
var Version = "dev"

func init() {
	keelCmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number of keel",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(Version)
			},
		})
}
