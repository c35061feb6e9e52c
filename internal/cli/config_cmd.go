package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/imyousuf/depgraph/internal/config"
	"github.com/imyousuf/depgraph/internal/graph"
)

// Style definitions for config view and summaries.
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"})
	labelStyle = lipgloss.NewStyle().
			Faint(true).
			Width(18)
	valueStyle = lipgloss.NewStyle()
	warnStyle  = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#F2C94C"})
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View or edit project configuration",
		Long: `View or edit depgraph project configuration.

By default, displays the effective configuration (file, environment and
pyproject.toml combined). Use 'config edit' to edit it interactively.`,
		RunE: runConfigView,
	}

	cmd.AddCommand(newConfigEditCmd())

	return cmd
}

func runConfigView(cmd *cobra.Command, args []string) error {
	cfg, root, err := loadConfig("")
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintln(out, headerStyle.Render("depgraph Configuration"))
	fmt.Fprintln(out, headerStyle.Render(strings.Repeat("=", 22)))
	fmt.Fprintln(out)

	printSection(out, "Project")
	printKV(out, "Root", root)
	if cfg.ConfigDir != "" {
		printKV(out, "Config dir", cfg.ConfigDir)
	} else {
		printKV(out, "Config dir", "(none, using defaults)")
	}
	fmt.Fprintln(out)

	printSection(out, "Analysis")
	printKV(out, "Languages", listOrNone(cfg.Languages))
	printKV(out, "Workers", workersLabel(cfg.Workers))
	printKV(out, "Max file size", sizeLabel(cfg.MaxFileSize))
	printKV(out, "Extra builtins", listOrNone(cfg.Builtins.Extra))
	printKV(out, "Kept builtins", listOrNone(cfg.Builtins.Keep))
	fmt.Fprintln(out)

	printSection(out, "Exclusions")
	if len(cfg.Exclude) == 0 {
		fmt.Fprintln(out, "    (none)")
	}
	for _, pattern := range cfg.Exclude {
		fmt.Fprintf(out, "    %s\n", pattern)
	}
	fmt.Fprintln(out)

	printSection(out, "Output")
	printKV(out, "Format", cfg.Output.Format)
	printKV(out, "Path", valueOr(cfg.Output.Path, "(stdout)"))
	printKV(out, "DB Path", dbPathFor(cfg, root, ""))
	fmt.Fprintln(out)

	printSection(out, "Server & Watch")
	printKV(out, "Listen", cfg.Server.Addr)
	printKV(out, "Quiet period", cfg.Watch.QuietPeriod.String())
	fmt.Fprintln(out)

	return nil
}

func printSection(out io.Writer, title string) {
	fmt.Fprintf(out, "  %s\n", headerStyle.Render(title))
}

func printKV(out io.Writer, label, value string) {
	fmt.Fprintf(out, "    %s%s\n", labelStyle.Render(label+":"), valueStyle.Render(value))
}

func listOrNone(values []string) string {
	if len(values) == 0 {
		return "(none)"
	}
	return strings.Join(values, ", ")
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func workersLabel(n int) string {
	if n == 0 {
		return "auto"
	}
	return strconv.Itoa(n)
}

func sizeLabel(n int64) string {
	switch {
	case n == 0:
		return "unlimited"
	case n%(1<<20) == 0:
		return fmt.Sprintf("%d MiB", n>>20)
	case n%(1<<10) == 0:
		return fmt.Sprintf("%d KiB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

func newConfigEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Edit project configuration interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigEdit(cmd)
		},
	}
}

func runConfigEdit(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.ConfigDir == "" {
		return fmt.Errorf("no project config found; run 'depgraph init' first")
	}

	out := cmd.OutOrStdout()
	ok, err := runConfigForm(cfg)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(out, "Cancelled.")
		return nil
	}

	configPath := filepath.Join(cfg.ConfigDir, config.ProjectConfigFile)
	if err := config.WriteConfig(cfg, configPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(out, "Configuration saved to %s\n", configPath)
	return nil
}

// runConfigForm edits cfg in place with an interactive form. It reports
// false when the user cancels.
func runConfigForm(cfg *config.Config) (bool, error) {
	registry, err := newRegistry()
	if err != nil {
		return false, err
	}

	root := cfg.Root
	languages := append([]string(nil), cfg.Languages...)
	exclude := strings.Join(cfg.Exclude, "\n")
	format := cfg.Output.Format
	outputPath := cfg.Output.Path
	addr := cfg.Server.Addr
	quiet := cfg.Watch.QuietPeriod.String()
	var confirm bool

	selected := make(map[string]bool, len(languages))
	for _, l := range languages {
		selected[l] = true
	}
	var langOptions []huh.Option[string]
	for _, lang := range registry.Languages() {
		opt := huh.NewOption(string(lang), string(lang))
		if selected[string(lang)] {
			opt = opt.Selected(true)
		}
		langOptions = append(langOptions, opt)
	}
	var formatOptions []huh.Option[string]
	for _, f := range graph.Formats {
		formatOptions = append(formatOptions, huh.NewOption(string(f), string(f)))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Repository root").
				Description("Relative paths are resolved against the directory holding .depgraph/").
				Value(&root),
			huh.NewMultiSelect[string]().
				Title("Languages to analyze").
				Options(langOptions...).
				Value(&languages),
			huh.NewText().
				Title("Exclude patterns").
				Description("One glob per line, e.g. tests/**").
				Value(&exclude),
		).Title("Analysis"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Export format").
				Options(formatOptions...).
				Value(&format),
			huh.NewInput().
				Title("Export path").
				Placeholder("leave empty for stdout").
				Value(&outputPath),
		).Title("Output"),

		huh.NewGroup(
			huh.NewInput().
				Title("Server listen address").
				Value(&addr).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("listen address cannot be empty")
					}
					return nil
				}),
			huh.NewInput().
				Title("Watch quiet period").
				Value(&quiet).
				Validate(func(s string) error {
					_, err := time.ParseDuration(strings.TrimSpace(s))
					return err
				}),
		).Title("Server & Watch"),

		huh.NewGroup(
			huh.NewConfirm().
				Title("Save changes?").
				Value(&confirm).
				Affirmative("Save").
				Negative("Cancel"),
		).Title("Confirm"),
	).WithTheme(huh.ThemeCharm())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("interactive config edit: %w", err)
	}
	if !confirm {
		return false, nil
	}

	cfg.Root = strings.TrimSpace(root)
	cfg.Languages = languages
	cfg.Exclude = splitLines(exclude)
	cfg.Output.Format = format
	cfg.Output.Path = strings.TrimSpace(outputPath)
	cfg.Server.Addr = strings.TrimSpace(addr)
	if d, err := time.ParseDuration(strings.TrimSpace(quiet)); err == nil {
		cfg.Watch.QuietPeriod = d
	}
	return true, nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
