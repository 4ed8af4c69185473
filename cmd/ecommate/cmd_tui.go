package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ecommate/internal/logger"
	"ecommate/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive terminal copywriter",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logFile := cfg.Log.File
		if logFile == "" {
			logFile = "ecommate.log"
		}
		// Anything on stderr would draw over the alt screen.
		log := logger.NewFileOnly(logFile)
		ctx := cmd.Context()

		a, err := newApp(ctx, log, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		p := tea.NewProgram(tui.New(ctx, a.pipeline, cfg.Styles), tea.WithAltScreen())
		_, err = p.Run()
		return err
	},
}
