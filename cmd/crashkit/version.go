package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strongdm/crashkit/pkg/crashkit/report"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the report SDK version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			version := a.cfg.Report.Version
			if version == "" {
				version = report.Version
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "crashkit %s\n", version)
			return err
		},
	}
}
