package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tordrt/wshealth"
	"github.com/tordrt/wshealth/internal/health"
)

var (
	workspaceID string
	fixKind     string
	verbose     bool
	mode        string
	format      string
	outputDir   string
)

var (
	healthyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	unhealthyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of a workspace and optionally fix it",
	RunE:  runHealth,
}

func init() {
	healthCmd.Flags().StringVarP(&workspaceID, "workspace-id", "w", "", "workspace id")
	healthCmd.Flags().StringVarP(&fixKind, "fix", "f", "", "fix issues of a kind: additive, nullable, type, default-value, destructive or all")
	healthCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every issue")
	healthCmd.Flags().StringVarP(&mode, "mode", "m", "", "check mode: structure, metadata or all (default: config or all)")
	healthCmd.Flags().StringVar(&format, "format", "text", "verbose output format: text, markdown or json")
	healthCmd.Flags().StringVarP(&outputDir, "output-dir", "d", "", "write the verbose report to a directory, one file per table")
	_ = healthCmd.MarkFlagRequired("workspace-id")
}

func runHealth(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if _, err := uuid.Parse(workspaceID); err != nil {
		return fmt.Errorf("invalid workspace id %q: %w", workspaceID, err)
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	checkMode := cfg.Health.Mode
	if mode != "" {
		checkMode = mode
	}
	m, err := health.ParseMode(checkMode)
	if err != nil {
		return err
	}

	var kind health.FixKind
	if fixKind != "" {
		if kind, err = health.ParseFixKind(fixKind); err != nil {
			return err
		}
	}

	logger := newLogger(cfg)
	engine, err := wshealth.Open(ctx, engineOptions(cfg, logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Warn("failed to close connections", "error", err)
		}
	}()

	out := cmd.OutOrStdout()
	issues, err := engine.Check(ctx, workspaceID, m)
	if err != nil {
		var connErr *wshealth.ConnectivityError
		if errors.As(err, &connErr) {
			return fmt.Errorf("cannot reach the workspace database: %w", err)
		}
		return err
	}

	if len(issues) == 0 {
		_, _ = fmt.Fprintln(out, healthyStyle.Render("Workspace is healthy"))
		return nil
	}

	_, _ = fmt.Fprintln(out, unhealthyStyle.Render("Workspace is not healthy"))
	_, _ = fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("%d issue(s) found", len(issues))))

	if verbose {
		if err := wshealth.FormatIssues(workspaceID, m, issues, &wshealth.OutputOptions{
			Writer:    out,
			OutputDir: outputDir,
			Format:    format,
		}); err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
	}

	if kind != "" {
		if err := runFix(ctx, out, engine, issues, kind); err != nil {
			return err
		}
	}

	return errUnhealthy
}

func runFix(ctx context.Context, out io.Writer, engine *wshealth.Engine, issues []wshealth.Issue, kind health.FixKind) error {
	report, err := engine.Fix(ctx, workspaceID, issues, kind)
	if err != nil {
		return err
	}

	if len(report.Migrations) == 0 && report.Applied == 0 && report.ExecutionErr == nil {
		_, _ = fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("No %s fixes apply", kind)))
		return nil
	}

	_, _ = fmt.Fprintf(out, "Planned %d migration(s), applied %d\n", len(report.Migrations), report.Applied)
	for _, m := range report.Migrations {
		_, _ = fmt.Fprintf(out, "  %s\n", m.Name)
	}
	if report.ExecutionErr != nil {
		_, _ = fmt.Fprintln(out, unhealthyStyle.Render("Running migrations failed: "+report.ExecutionErr.Error()))
	}
	return nil
}
