package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fpang/annotation-router/internal/classes"
)

var classesCmd = &cobra.Command{
	Use:   "classes",
	Short: "Print the class table and its directory names",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		table := classes.Default()
		fmt.Fprintf(out, "Class table version %d\n", classes.TableVersion)
		for i, label := range table.Labels() {
			c, _ := table.Lookup(label)
			fmt.Fprintf(out, "  %2d  %-10s %s\n", i, c.DirName(), label)
		}
	},
}
