package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/shoaldb/keel/config"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Run an interactive administrative console",
	RunE:  replRun,
}

func init() {
	initServerFlags(replCmd.Flags())
	keelCmd.AddCommand(replCmd)
}

// replRun is a small liner-backed console over the same admin operations the
// `admin` subcommands expose, for interactive poking at a running data
// directory: checkpoint, backup-next-checkpoint, and param inspection.
func replRun(cmd *cobra.Command, args []string) error {
	m, err := newManager()
	if err != nil {
		return err
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Println("keel repl: checkpoint | backup-next | params | quit")
	for {
		input, err := line.Prompt("keel> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				return nil
			}
			return err
		}
		line.AppendHistory(input)

		switch strings.TrimSpace(input) {
		case "checkpoint":
			if err := m.Checkpoint(); err != nil {
				fmt.Fprintf(os.Stderr, "checkpoint: %s\n", err)
			}
		case "backup-next":
			m.BackupNextCheckpoint()
		case "params":
			for _, p := range config.AllParams() {
				fmt.Printf("%s=%s\n", p.Name, p.Val.String())
			}
		case "quit", "exit":
			return nil
		case "":
		default:
			fmt.Fprintf(os.Stderr, "unrecognized command: %s\n", input)
		}
	}
}
