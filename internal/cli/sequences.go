package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/outflow-crm/outflow/internal/db"
	"github.com/outflow-crm/outflow/internal/events"
	"github.com/outflow-crm/outflow/internal/models"
	"github.com/outflow-crm/outflow/internal/sequences"
	"github.com/spf13/cobra"
)

var sequencesImportActivate bool

func init() {
	rootCmd.AddCommand(sequencesCmd)
	sequencesCmd.AddCommand(sequencesListCmd)
	sequencesCmd.AddCommand(sequencesImportCmd)
	sequencesCmd.AddCommand(sequencesShowCmd)
	sequencesCmd.AddCommand(sequencesActivateCmd)
	sequencesCmd.AddCommand(sequencesDeactivateCmd)

	sequencesImportCmd.Flags().BoolVar(&sequencesImportActivate, "activate", false, "activate the sequence on import")
}

var sequencesCmd = &cobra.Command{
	Use:   "sequences",
	Short: "Manage sequence definitions",
}

var sequencesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sequence definitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		repo := db.NewSequenceRepository(database)
		list, err := repo.List(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tACTIVE\tSTEPS\tTAGS\tENROLLMENTS")
		for _, seq := range list {
			fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%s\t%d\n",
				seq.ID,
				seq.Name,
				seq.Active,
				len(seq.Steps),
				strings.Join(seq.EligibilityTags, ","),
				seq.EnrollmentCount,
			)
		}
		return w.Flush()
	},
}

var sequencesImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import a sequence definition from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := sequences.LoadFile(args[0])
		if err != nil {
			return err
		}
		if sequencesImportActivate {
			def.Active = true
		}
		seq, err := def.ToModel()
		if err != nil {
			return err
		}

		database, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		repo := db.NewSequenceRepository(database)
		if err := repo.Create(cmd.Context(), seq); err != nil {
			return err
		}
		if err := events.LogSequenceChange(cmd.Context(), db.NewEventRepository(database), seq, models.EventTypeSequenceImported); err != nil {
			return err
		}

		fmt.Printf("imported sequence %s (%s), active=%t\n", seq.Name, seq.ID, seq.Active)
		return nil
	},
}

var sequencesShowCmd = &cobra.Command{
	Use:   "show <sequence-id>",
	Short: "Show a sequence definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		repo := db.NewSequenceRepository(database)
		seq, err := repo.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Name:        %s\n", seq.Name)
		fmt.Printf("Active:      %t\n", seq.Active)
		fmt.Printf("Team:        %s\n", seq.TeamID)
		fmt.Printf("Tags:        %s\n", strings.Join(seq.EligibilityTags, ", "))
		stops := make([]string, 0, len(seq.StopConditions))
		for _, sc := range seq.StopConditions {
			stops = append(stops, string(sc))
		}
		fmt.Printf("Stops on:    %s\n", strings.Join(stops, ", "))
		fmt.Printf("Enrollments: %d\n", seq.EnrollmentCount)
		fmt.Println("Steps:")
		for _, step := range seq.Steps {
			var conds []string
			if step.Conditions.OnlyIfNoResponse {
				conds = append(conds, "only_if_no_response")
			}
			if step.Conditions.OnlyBusinessHours {
				conds = append(conds, "only_business_hours")
			}
			if step.Conditions.SkipWeekends {
				conds = append(conds, "skip_weekends")
			}
			fmt.Printf("  %d. %s after %dd%dh %s\n",
				step.Order, step.ActionType, step.DelayDays, step.DelayHours, strings.Join(conds, ","))
		}
		return nil
	},
}

var sequencesActivateCmd = &cobra.Command{
	Use:   "activate <sequence-id>",
	Short: "Activate a sequence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSequenceActive(cmd, args[0], true)
	},
}

var sequencesDeactivateCmd = &cobra.Command{
	Use:   "deactivate <sequence-id>",
	Short: "Deactivate a sequence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSequenceActive(cmd, args[0], false)
	},
}

func setSequenceActive(cmd *cobra.Command, id string, active bool) error {
	database, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer database.Close()

	repo := db.NewSequenceRepository(database)
	if err := repo.SetActive(cmd.Context(), id, active); err != nil {
		return err
	}

	eventType := models.EventTypeSequenceActivated
	if !active {
		eventType = models.EventTypeSequenceDeactivated
	}
	seq, err := repo.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	if err := events.LogSequenceChange(cmd.Context(), db.NewEventRepository(database), seq, eventType); err != nil {
		return err
	}

	fmt.Printf("sequence %s active=%t\n", id, active)
	return nil
}
