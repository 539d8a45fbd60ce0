package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/outflow-crm/outflow/internal/conditions"
	"github.com/outflow-crm/outflow/internal/db"
	"github.com/outflow-crm/outflow/internal/enroll"
	"github.com/outflow-crm/outflow/internal/models"
	"github.com/spf13/cobra"
)

var (
	runsListLead           string
	runsListSequence       string
	runsListStatus         string
	runsListNeedsAttention bool
	runsStopReason         string
	enrollTeamID           string
	enrollTag              string
)

func init() {
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(enrollCmd)

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsPauseCmd)
	runsCmd.AddCommand(runsResumeCmd)
	runsCmd.AddCommand(runsStopCmd)

	runsListCmd.Flags().StringVar(&runsListLead, "lead", "", "filter by lead ID")
	runsListCmd.Flags().StringVar(&runsListSequence, "sequence", "", "filter by sequence ID")
	runsListCmd.Flags().StringVar(&runsListStatus, "status", "", "filter by status (active, paused, stopped, completed)")
	runsListCmd.Flags().BoolVar(&runsListNeedsAttention, "needs-attention", false, "only runs stopped after exhausting execution retries")
	runsStopCmd.Flags().StringVar(&runsStopReason, "reason", "", "stop reason recorded on the run")

	enrollCmd.Flags().StringVar(&enrollTag, "tag", "", "auto-match by tag instead of naming a sequence")
	enrollCmd.Flags().StringVar(&enrollTeamID, "team", "", "team scope for tag auto-matching")
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect and control sequence runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		repo := db.NewRunRepository(database)
		runs, err := repo.List(cmd.Context(), db.ListFilter{
			LeadID:         runsListLead,
			SequenceID:     runsListSequence,
			Status:         models.RunStatus(runsListStatus),
			NeedsAttention: runsListNeedsAttention,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tLEAD\tSEQUENCE\tSTATUS\tSTEP\tNEXT DUE\tREASON")
		for _, run := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
				run.ID,
				run.LeadID,
				run.SequenceID,
				run.Status,
				run.CurrentStep,
				len(run.Steps),
				formatDue(run.NextDueAt),
				run.StoppedReason,
			)
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run's progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		repo := db.NewRunRepository(database)
		run, err := repo.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Lead:      %s\n", run.LeadID)
		fmt.Printf("Sequence:  %s\n", run.SequenceID)
		fmt.Printf("Status:    %s\n", run.Status)
		fmt.Printf("Step:      %d of %d\n", run.CurrentStep, len(run.Steps))
		fmt.Printf("Next due:  %s\n", formatDue(run.NextDueAt))
		fmt.Printf("Enrolled:  %s\n", run.EnrolledAt.Format(time.RFC3339))
		if run.StoppedReason != "" {
			fmt.Printf("Stopped:   %s\n", run.StoppedReason)
		}
		if len(run.StepsCompleted) > 0 {
			fmt.Println("History:")
			for _, sc := range run.StepsCompleted {
				marker := "executed"
				if sc.Skipped {
					marker = "skipped (" + sc.SkipReason + ")"
				}
				fmt.Printf("  step %d %s at %s\n", sc.StepOrder, marker, sc.ExecutedAt.Format(time.RFC3339))
			}
		}
		return nil
	},
}

var runsPauseCmd = &cobra.Command{
	Use:   "pause <run-id>",
	Short: "Pause an active run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, database, err := openEnrollService(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := svc.Pause(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("run %s paused\n", args[0])
		return nil
	},
}

var runsResumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume a paused run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, database, err := openEnrollService(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := svc.Resume(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("run %s resumed\n", args[0])
		return nil
	},
}

var runsStopCmd = &cobra.Command{
	Use:   "stop <run-id>",
	Short: "Stop a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, database, err := openEnrollService(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := svc.Stop(cmd.Context(), args[0], runsStopReason); err != nil {
			return err
		}
		fmt.Printf("run %s stopped\n", args[0])
		return nil
	},
}

var enrollCmd = &cobra.Command{
	Use:   "enroll <lead-id> [sequence-id]",
	Short: "Enroll a lead into a sequence",
	Long:  "Enroll a lead into a named sequence, or auto-match by tag with --tag.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		leadID := args[0]

		svc, database, err := openEnrollService(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		if enrollTag != "" {
			auto := enroll.NewAutoEnroller(db.NewSequenceRepository(database), svc)
			if err := auto.OnLeadTagged(cmd.Context(), leadID, enrollTag, enrollTeamID); err != nil {
				return err
			}
			fmt.Printf("auto-enroll attempted for lead %s (tag %s)\n", leadID, enrollTag)
			return nil
		}

		if len(args) < 2 {
			return fmt.Errorf("sequence id is required unless --tag is given")
		}
		run, err := svc.Enroll(cmd.Context(), leadID, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enrolled lead %s, run %s, first step due %s\n", leadID, run.ID, formatDue(run.NextDueAt))
		return nil
	},
}

func openEnrollService(cmd *cobra.Command) (*enroll.Service, *db.DB, error) {
	database, err := openDatabase(cmd)
	if err != nil {
		return nil, nil, err
	}

	svc := enroll.NewService(
		db.NewSequenceRepository(database),
		db.NewRunRepository(database),
		db.NewEventRepository(database),
		conditions.WindowFromConfig(cfg.BusinessHours),
	)
	return svc, database, nil
}

func formatDue(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}
