package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/longform/internal/config"
)

var (
	initForce       bool
	initNoGitignore bool
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a longform project",
	Long: `Prepare a directory for use with longform.

This command:
  - Reports which generation backends are reachable
  - Writes a .longform.yaml template with the current defaults
  - Adds the output directory to .gitignore

The directory argument is optional and defaults to the current directory.

Examples:
  longform init
  longform init ./docs --force
  longform init --no-gitignore`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing .longform.yaml")
	initCmd.Flags().BoolVar(&initNoGitignore, "no-gitignore", false, "Leave .gitignore untouched")
}

func runInit(cmd *cobra.Command, args []string) error {
	target := "."
	if len(args) > 0 {
		target = args[0]
	}
	absPath, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	fmt.Printf("Initializing longform in %s...\n\n", absPath)

	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}
	available := checkBackends(cfg)

	written, err := writeProjectConfig(absPath, config.Default(), initForce)
	if err != nil {
		return fmt.Errorf("creating project config: %w", err)
	}
	if written {
		printStatus("✓", "Created "+config.ProjectConfigName, color.FgGreen)
	} else {
		printStatus("•", config.ProjectConfigName+" exists (use --force to overwrite)", color.FgWhite)
	}

	if !initNoGitignore {
		added, err := updateGitignore(absPath, cfg.Generation.OutputDir)
		if err != nil {
			return fmt.Errorf("updating .gitignore: %w", err)
		}
		if added {
			printStatus("✓", "Added "+cfg.Generation.OutputDir+"/ to .gitignore", color.FgGreen)
		}
	}

	fmt.Printf("\n%s longform initialization complete!\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	if available == 0 {
		fmt.Println("  Set a backend, for example:")
		fmt.Println("     export ANTHROPIC_API_KEY=your-key-here")
		fmt.Println("  (without one, generate writes placeholders only)")
		fmt.Println()
	}
	fmt.Println("  longform generate path/to/source.md")
	fmt.Println("  longform status")
	return nil
}

// checkBackends prints one line per backend and returns how many look usable.
func checkBackends(cfg *config.Config) int {
	n := 0

	if key, src, err := config.AnthropicKey(cfg); err == nil && key != "" {
		printStatus("✓", fmt.Sprintf("Anthropic API key found (%s)", src), color.FgGreen)
		n++
	} else if cfg.Anthropic.UseBedrock {
		printStatus("✓", "Anthropic via Bedrock enabled", color.FgGreen)
		n++
	} else {
		printStatus("⚠", "ANTHROPIC_API_KEY not set (you can set it later)", color.FgYellow)
	}

	cli := cfg.Oracle.CLIPath
	if cli == "" {
		cli = "claude"
	}
	if path, err := exec.LookPath(cli); err == nil {
		printStatus("✓", "Claude CLI found at "+path, color.FgGreen)
		n++
	} else {
		printStatus("⚠", "Claude CLI not found in PATH", color.FgYellow)
	}

	if key, _, err := config.OpenAIKey(cfg); err == nil && key != "" {
		printStatus("✓", "OpenAI API key found", color.FgGreen)
		n++
	}
	if cfg.Ollama.ServerURL != "" || os.Getenv("OLLAMA_HOST") != "" {
		printStatus("✓", "Ollama server configured", color.FgGreen)
		n++
	}

	return n
}

// projectTemplate is the subset of settings worth overriding per project.
// API keys are left out so the file can be committed.
func projectTemplate(cfg *config.Config) map[string]any {
	return map[string]any{
		"oracle": map[string]any{
			"strategy":   cfg.Oracle.Strategy,
			"preference": cfg.Oracle.Preference,
			"model":      cfg.Oracle.Model,
			"max_tokens": cfg.Oracle.MaxTokens,
		},
		"openai": map[string]any{
			"model": cfg.OpenAI.Model,
		},
		"ollama": map[string]any{
			"model": cfg.Ollama.Model,
		},
		"generation": map[string]any{
			"excerpt_lines": cfg.Generation.ExcerptLines,
			"excerpt_chars": cfg.Generation.ExcerptChars,
			"output_dir":    cfg.Generation.OutputDir,
			"document_name": cfg.Generation.DocumentName,
			"html":          cfg.Generation.HTML,
		},
		"review": map[string]any{
			"enabled": cfg.Review.Enabled,
		},
	}
}

// writeProjectConfig writes .longform.yaml into dir. It reports false
// without writing when the file exists and force is off.
func writeProjectConfig(dir string, cfg *config.Config, force bool) (bool, error) {
	path := filepath.Join(dir, config.ProjectConfigName)
	if _, err := os.Stat(path); err == nil && !force {
		return false, nil
	}

	body, err := yaml.Marshal(projectTemplate(cfg))
	if err != nil {
		return false, err
	}

	header := "# longform project configuration\n" +
		"# Overrides ~/.config/longform/config.yaml for this directory tree.\n" +
		"# Keep API keys in the environment or the user config.\n\n"
	if err := os.WriteFile(path, append([]byte(header), body...), 0644); err != nil {
		return false, err
	}
	return true, nil
}

// updateGitignore appends outputDir to .gitignore unless already listed.
func updateGitignore(dir, outputDir string) (bool, error) {
	if outputDir == "" || filepath.IsAbs(outputDir) {
		return false, nil
	}
	entry := strings.TrimSuffix(filepath.ToSlash(outputDir), "/") + "/"
	path := filepath.Join(dir, ".gitignore")

	var existing string
	if data, err := os.ReadFile(path); err == nil {
		existing = string(data)
	} else if !os.IsNotExist(err) {
		return false, err
	}

	for _, line := range strings.Split(existing, "\n") {
		line = strings.TrimSpace(line)
		if line == entry || line == strings.TrimSuffix(entry, "/") {
			return false, nil
		}
	}

	var b strings.Builder
	b.WriteString(existing)
	if existing != "" && !strings.HasSuffix(existing, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n# longform\n")
	b.WriteString(entry + "\n")
	return true, os.WriteFile(path, []byte(b.String()), 0644)
}
