package main

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/keyprint/internal/enrollment"
	"github.com/verte-zerg/keyprint/internal/historyui"
	"github.com/verte-zerg/keyprint/internal/stats"
	"github.com/verte-zerg/keyprint/internal/store"
)

var (
	historyUser  string
	historyLast  int
	historyPlain bool
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show, list or delete stored profiles",
	}

	show := &cobra.Command{
		Use:   "show --user ID",
		Short: "Show a user's profile and enrollment progress",
		Args:  cobra.NoArgs,
		RunE:  runProfileShowCmd,
	}
	show.Flags().StringVar(&userID, "user", "", "user id")
	show.Flags().BoolVar(&jsonOutput, "json", false, "print the profile as JSON")
	_ = show.MarkFlagRequired("user")

	list := &cobra.Command{
		Use:   "list",
		Short: "List enrolled users",
		Args:  cobra.NoArgs,
		RunE:  runProfileListCmd,
	}

	del := &cobra.Command{
		Use:   "delete --user ID",
		Short: "Delete a user's profile",
		Args:  cobra.NoArgs,
		RunE:  runProfileDeleteCmd,
	}
	del.Flags().StringVar(&userID, "user", "", "user id")
	_ = del.MarkFlagRequired("user")

	cmd.AddCommand(show, list, del)
	return cmd
}

func runProfileShowCmd(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	p, err := e.backend.GetProfile(cmd.Context(), userID)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	if p == nil {
		return fmt.Errorf("no profile for user %q", userID)
	}
	progress := enrollment.Progress(*p, e.targets())
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"profile":  p,
			"progress": progress,
		})
	}
	return stats.NewRenderer(cmd.OutOrStdout()).RenderProfile(*p, progress)
}

func runProfileListCmd(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	profiles, err := e.backend.ListProfiles(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}
	if len(profiles) == 0 {
		logErrf("No profiles enrolled yet. Enroll with: keyprint enroll --user <id> <sample.json>\n")
		return nil
	}
	targets := e.targets()
	rows := make([][]string, 0, len(profiles))
	for _, p := range profiles {
		status := "enrolling"
		if enrollment.Evaluate(p, targets).OK {
			status = "ready"
		}
		rows = append(rows, []string{
			p.UserID,
			fmt.Sprintf("%d", enrollment.Rounds(p)),
			fmt.Sprintf("%d", p.SampleCount),
			fmt.Sprintf("%d", p.DigraphCount),
			status,
			p.UpdatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	lines := stats.FormatTable(
		[]string{"User", "Rounds", "Keys", "Digraphs", "Status", "Updated"},
		rows, map[int]bool{1: true, 2: true, 3: true})
	for _, line := range lines {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func runProfileDeleteCmd(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.backend.DeleteProfile(cmd.Context(), userID); err != nil {
		if errors.Is(err, store.ErrProfileNotFound) {
			return fmt.Errorf("no profile for user %q", userID)
		}
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted profile %s\n", userID); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse verification history",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().StringVar(&historyUser, "user", "", "user filter")
	cmd.Flags().IntVar(&historyLast, "last", 0, "limit to last N attempts")
	cmd.Flags().BoolVar(&historyPlain, "plain", false, "print a report instead of opening the TUI")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	if historyLast < 0 {
		return fmt.Errorf("--last must be >= 0")
	}
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if historyPlain {
		report, err := stats.BuildReport(cmd.Context(), e.backend, historyUser, historyLast)
		if err != nil {
			return fmt.Errorf("failed to build report: %w", err)
		}
		return stats.NewRenderer(cmd.OutOrStdout()).RenderReport(report)
	}

	model := historyui.NewModel(e.backend, historyui.Filter{UserID: historyUser, Last: historyLast}, e.targets())
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run history TUI: %w", err)
	}
	return nil
}
