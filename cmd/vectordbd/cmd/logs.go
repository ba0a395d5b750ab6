package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/logging"
)

func newLogsCmd() *cobra.Command {
	var source string
	var tail int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View vectordbd daemon logs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			src := logging.ParseLogSource(source)
			paths, err := logging.FindLogFileBySource(src, "")
			if err != nil {
				return err
			}

			v := logging.NewViewer(logging.ViewerConfig{ShowSource: len(paths) > 1}, cmd.OutOrStdout())
			entries, err := v.TailMultiple(paths, tail)
			if err != nil {
				return err
			}
			v.Print(entries)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "server", "Log source: server|replication|all")
	cmd.Flags().IntVar(&tail, "tail", 100, "Number of lines to show")

	return cmd
}
