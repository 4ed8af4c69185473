package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ecommate/internal/pipeline"
)

var (
	genImage  string
	genStyle  string
	genLength string
	genNote   string
	genDebug  bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write marketing copy for one product image",
	Example: "  ecommate generate --image shirt.jpg --style \"marketplace listing\"\n" +
		"  ecommate generate --image shirt.jpg --style \"livestream script\" --length \"about 80 words\" --debug",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg)
		ctx := cmd.Context()

		a, err := newApp(ctx, log, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		st, runErr := a.pipeline.Run(ctx, pipeline.Input{
			Image:      pipeline.ImageRef{Path: genImage},
			Style:      genStyle,
			LengthHint: genLength,
			Note:       genNote,
		})
		if genDebug && st != nil {
			enc := json.NewEncoder(os.Stderr)
			enc.SetIndent("", "  ")
			if err := enc.Encode(st); err != nil {
				return err
			}
		}
		if runErr != nil {
			return runErr
		}
		fmt.Fprintln(cmd.OutOrStdout(), *st.FinalText)
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVar(&genImage, "image", "", "Path to the product image")
	generateCmd.Flags().StringVar(&genStyle, "style", "", "Copy style, e.g. one of the configured presets")
	generateCmd.Flags().StringVar(&genLength, "length", "", "Length hint for the copy (optional)")
	generateCmd.Flags().StringVar(&genNote, "note", "", "Extra requirements for the writer (optional)")
	generateCmd.Flags().BoolVar(&genDebug, "debug", false, "Print the pipeline state as JSON to stderr")
	_ = generateCmd.MarkFlagRequired("image")
	_ = generateCmd.MarkFlagRequired("style")
}
