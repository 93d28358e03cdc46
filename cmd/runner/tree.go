package main

import (
	"experiment-runner/storage"

	"github.com/spf13/cobra"
)

func newTreeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tree [dir]",
		Short: "Print the directory tree of a work directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			} else {
				cfg, _, err := root.load()
				if err != nil {
					return err
				}
				dir = cfg.WorkRoot
			}
			return storage.PrintTree(cmd.OutOrStdout(), dir)
		},
	}
}
