package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/shoaldb/keel/config"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative operations against a keel data directory",
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Run one checkpoint cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager()
		if err != nil {
			return err
		}
		if err := m.Checkpoint(); err != nil {
			return fmt.Errorf("keel: checkpoint: %s", err)
		}
		return nil
	},
}

var backupNextCmd = &cobra.Command{
	Use:   "backup-next-checkpoint",
	Short: "Force the next checkpoint to take a hot backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager()
		if err != nil {
			return err
		}
		m.BackupNextCheckpoint()
		return m.Checkpoint()
	},
}

var listParamsCmd = &cobra.Command{
	Use:   "list-params",
	Short: "List every configuration parameter and its current value",
	Run: func(cmd *cobra.Command, args []string) {
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Name", "Value", "Options"})
		for _, p := range config.AllParams() {
			table.Append([]string{p.Name, p.Val.String(), p.Options.String()})
		}
		table.Render()
	},
}

func init() {
	initServerFlags(adminCmd.PersistentFlags())
	adminCmd.AddCommand(checkpointCmd, backupNextCmd, listParamsCmd)
	keelCmd.AddCommand(adminCmd)
}
