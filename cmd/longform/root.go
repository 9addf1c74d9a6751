package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	flagProject string
	flagOut     string
)

var rootCmd = &cobra.Command{
	Use:   "longform",
	Short: "Long document synthesis from a short source",
	Long: `longform expands a source document (Markdown, text, HTML, PDF or DOCX)
into a long, hierarchically structured document such as a requirements or
design document.

The pipeline asks a text generation backend for an outline, drafts every
section separately, assembles the result with a table of contents and
optionally runs a final consistency review. Every step is saved under
.longform/<source>/ so an interrupted run resumes where it stopped.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagProject, "project", "", "Project root (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&flagOut, "out", "", "Output directory for this source (default: <project>/.longform/<source>)")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

// projectRoot returns the absolute project directory.
func projectRoot() (string, error) {
	if flagProject != "" {
		return filepath.Abs(flagProject)
	}
	return os.Getwd()
}
