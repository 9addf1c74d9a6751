package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/longform/internal/config"
	"github.com/ShayCichocki/longform/internal/manifest"
	"github.com/ShayCichocki/longform/internal/pipeline"
	"github.com/ShayCichocki/longform/internal/source"
	"github.com/ShayCichocki/longform/internal/state"
	"github.com/ShayCichocki/longform/internal/workspace"
)

var statusRuns int

var statusCmd = &cobra.Command{
	Use:   "status [source]",
	Short: "Show generation progress",
	Long: `Display the state of one or all output directories.

Shows:
  - The last run: state, backend, oracle calls and token usage
  - Every section in document order with its ledger status and hash
  - Recent runs

Without a source, every output directory under the project is listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusRuns, "runs", 5, "Number of recent runs to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	roots, err := workspaceRoots(cfg, args)
	if err != nil {
		return err
	}
	if len(roots) == 0 {
		fmt.Println("No output found. Run 'longform generate <source>' to start.")
		return nil
	}

	for i, root := range roots {
		if i > 0 {
			fmt.Println()
		}
		if err := displayWorkspace(root); err != nil {
			return err
		}
	}
	return nil
}

// workspaceRoots returns the output directory for the given source, or
// every output directory under the project that holds a ledger.
func workspaceRoots(cfg *config.Config, args []string) ([]string, error) {
	if flagOut != "" {
		abs, err := filepath.Abs(flagOut)
		if err != nil {
			return nil, err
		}
		return []string{abs}, nil
	}

	project, err := projectRoot()
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	if len(args) > 0 {
		return []string{workspace.DefaultRoot(project, cfg.Generation.OutputDir, source.Stem(args[0]))}, nil
	}

	pattern := filepath.Join(workspace.DefaultRoot(project, cfg.Generation.OutputDir, "*"), "state.db")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	roots := make([]string, 0, len(matches))
	for _, m := range matches {
		roots = append(roots, filepath.Dir(m))
	}
	sort.Strings(roots)
	return roots, nil
}

func displayWorkspace(root string) error {
	ws := workspace.New(root)
	if !workspace.Exists(ws.StateDB()) {
		fmt.Printf("%s: no runs yet\n", root)
		return nil
	}

	db, err := state.OpenLedger(ws.StateDB())
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer db.Close()

	fmt.Printf("Output: %s\n", root)

	last, err := db.LastRun()
	if err != nil {
		return fmt.Errorf("get last run: %w", err)
	}
	if last != nil {
		displayRun(last)
	}

	if err := displaySections(ws, db); err != nil {
		return err
	}

	for _, key := range []string{state.KeyDocument, state.KeyReview} {
		a, err := db.GetArtifact(key)
		if err != nil {
			return err
		}
		if a != nil {
			fmt.Printf("  %-9s %s (%s, %s ago)\n", key+":", a.Path, a.Status, formatDuration(time.Since(a.UpdatedAt)))
		}
	}

	return displayRecentRuns(db)
}

func displayRun(r *state.Run) {
	status := r.State
	if r.FinishedAt == nil {
		status += " (running or interrupted)"
	}
	fmt.Printf("  Last run: %s\n", shortID(r.ID))
	fmt.Printf("    State:    %s\n", status)
	fmt.Printf("    Started:  %s ago\n", formatDuration(time.Since(r.StartedAt)))
	fmt.Printf("    Oracle:   %s (%s), %d call(s)\n", r.Strategy, r.Model, r.OracleCalls)
	if r.InputTokens+r.OutputTokens > 0 {
		fmt.Printf("    Tokens:   %s in / %s out\n", formatNumber(int(r.InputTokens)), formatNumber(int(r.OutputTokens)))
	}
	if r.DryRun || r.Force {
		fmt.Printf("    Flags:    dry-run=%t force=%t\n", r.DryRun, r.Force)
	}
	if r.Error != "" {
		fmt.Printf("    Error:    %s\n", r.Error)
	}
}

// displaySections lists sections in document order when a manifest
// exists, otherwise whatever the ledger holds.
func displaySections(ws *workspace.Workspace, db *state.DB) error {
	entries, err := db.ListArtifacts(state.KindSection)
	if err != nil {
		return fmt.Errorf("list sections: %w", err)
	}

	rows, summary := sectionRows(ws, entries)
	fmt.Printf("  Sections: %s\n", summary)
	if len(rows) == 0 {
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("238"))).
		Headers("#", "SECTION", "STATUS", "HASH", "FILE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return s.Bold(true)
			}
			if col == 2 && row >= 0 && row < len(rows) {
				return s.Foreground(statusColor(rows[row][2]))
			}
			return s
		})
	fmt.Println(t.Render())
	return nil
}

// manifestNodes reads manifest.json, or manifest.flat.yaml when the JSON
// form is missing or damaged.
func manifestNodes(ws *workspace.Workspace) ([]*manifest.Node, bool) {
	if m, err := manifest.Load(ws.ManifestJSON()); err == nil {
		return m.Nodes, true
	}
	if nodes, err := manifest.LoadFlat(ws.ManifestFlat()); err == nil {
		return nodes, true
	}
	return nil, false
}

// sectionRows builds one table row per section and a progress summary.
func sectionRows(ws *workspace.Workspace, entries []state.Artifact) ([][]string, string) {
	nodes, ok := manifestNodes(ws)
	if !ok {
		rows := make([][]string, 0, len(entries))
		for _, a := range entries {
			rows = append(rows, []string{"", strings.TrimPrefix(a.Key, "section:"), string(a.Status), shortHash(a.ContentHash), a.Path})
		}
		return rows, fmt.Sprintf("%d recorded", len(entries))
	}

	byKey := make(map[string]state.Artifact, len(entries))
	for _, a := range entries {
		byKey[a.Key] = a
	}
	rows := make([][]string, 0, len(nodes))
	done := 0
	for _, n := range nodes {
		row := []string{n.Label, truncate(n.Title, 40), "pending", "", n.FileName()}
		if a, ok := byKey[state.SectionKey(n.Slug)]; ok && workspace.Exists(ws.Section(n.FileName())) {
			row[2] = string(a.Status)
			row[3] = shortHash(a.ContentHash)
			done++
		}
		rows = append(rows, row)
	}
	return rows, fmt.Sprintf("%d/%d", done, len(nodes))
}

func statusColor(status string) lipgloss.Color {
	switch state.ArtifactStatus(status) {
	case state.StatusGenerated, state.StatusReviewed:
		return lipgloss.Color("34")
	case state.StatusAdopted:
		return lipgloss.Color("39")
	case state.StatusPlaceholder:
		return lipgloss.Color("214")
	default:
		return lipgloss.Color("245")
	}
}

func displayRecentRuns(db *state.DB) error {
	if statusRuns <= 0 {
		return nil
	}
	runs, err := db.ListRuns(statusRuns)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) < 2 {
		return nil
	}

	fmt.Println("  Recent runs:")
	for _, r := range runs {
		marker := " "
		if pipeline.State(r.State).Terminal() && r.Error == "" {
			marker = "✓"
		} else if r.Error != "" {
			marker = "✗"
		}
		fmt.Printf("    %s %s %-17s %s ago\n", marker, shortID(r.ID), r.State, formatDuration(time.Since(r.StartedAt)))
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}

// formatNumber formats a number with commas.
func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	offset := len(s) % 3
	if offset > 0 {
		result.WriteString(s[:offset])
		result.WriteString(",")
	}
	for i := offset; i < len(s); i += 3 {
		result.WriteString(s[i : i+3])
		if i+3 < len(s) {
			result.WriteString(",")
		}
	}
	return result.String()
}
