package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ecommate/internal/index"
)

var (
	indexForce bool
	queryK     int
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the reference copy index",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the index from the dataset, or load it if already built",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newIndexApp(cmd.Context(), newLogger(cfg), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if indexForce {
			err = a.index.Rebuild(cmd.Context())
		} else {
			err = a.index.Ensure(cmd.Context())
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "index ready")
		return nil
	},
}

var indexQueryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Show the nearest reference copy for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newIndexApp(cmd.Context(), newLogger(cfg), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := a.index.Query(cmd.Context(), strings.Join(args, " "), queryK)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for i, r := range results {
			fmt.Fprintf(out, "%d. [%.3f] (%s) %s\n", i+1, r.Score, r.Reference.Style, r.Reference.Content)
		}
		if len(results) == 0 {
			fmt.Fprintln(out, "no results")
		}
		return nil
	},
}

func init() {
	indexBuildCmd.Flags().BoolVar(&indexForce, "force", false, "Discard any existing index and rebuild from the dataset")
	indexQueryCmd.Flags().IntVarP(&queryK, "k", "k", index.DefaultTopK, "Number of results")
	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexQueryCmd)
}
