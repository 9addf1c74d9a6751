package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/longform/internal/config"
	"github.com/ShayCichocki/longform/internal/pipeline"
	"github.com/ShayCichocki/longform/internal/state"
	"github.com/ShayCichocki/longform/internal/workspace"
)

var stopCmd = &cobra.Command{
	Use:   "stop [source]",
	Short: "Stop a running generation after its current request",
	Long: `Ask a running 'longform generate' to stop.

The run checks for the signal before every backend request, so the request
in flight completes and is saved first. Everything written so far is kept
and the next 'longform generate' resumes from there.

Without a source, every output directory with an unfinished run is signalled.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	roots, err := workspaceRoots(cfg, args)
	if err != nil {
		return err
	}

	sent := 0
	for _, root := range roots {
		if len(args) == 0 && flagOut == "" && !hasUnfinishedRun(root) {
			continue
		}
		ws := workspace.New(root)
		if err := pipeline.SendStop(ws.StopSignal()); err != nil {
			return fmt.Errorf("signal %s: %w", root, err)
		}
		printStatus("■", "Stop requested for "+root, color.FgYellow)
		sent++
	}

	if sent == 0 {
		fmt.Println("No running generation found.")
	}
	return nil
}

// hasUnfinishedRun reports whether the last run recorded in root has not
// finished yet.
func hasUnfinishedRun(root string) bool {
	ws := workspace.New(root)
	if !workspace.Exists(ws.StateDB()) {
		return false
	}
	db, err := state.OpenLedger(ws.StateDB())
	if err != nil {
		return false
	}
	defer db.Close()

	last, err := db.LastRun()
	return err == nil && last != nil && last.FinishedAt == nil
}
