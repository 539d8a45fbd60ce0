package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/outflow-crm/outflow/internal/db"
	"github.com/outflow-crm/outflow/internal/models"
	"github.com/spf13/cobra"
)

var (
	eventsRunID  string
	eventsLeadID string
	eventsType   string
	eventsLimit  int
)

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().StringVar(&eventsRunID, "run", "", "filter by run ID")
	eventsCmd.Flags().StringVar(&eventsLeadID, "lead", "", "filter by lead ID")
	eventsCmd.Flags().StringVar(&eventsType, "type", "", "filter by event type")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "maximum events to show")
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Query the audit event log",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		repo := db.NewEventRepository(database)

		if eventsRunID != "" && eventsLeadID != "" {
			return fmt.Errorf("--run and --lead are mutually exclusive")
		}

		query := db.EventQuery{Limit: eventsLimit}
		if eventsRunID != "" {
			et := models.EntityTypeRun
			query.EntityType = &et
			query.EntityID = &eventsRunID
		}
		if eventsLeadID != "" {
			et := models.EntityTypeLead
			query.EntityType = &et
			query.EntityID = &eventsLeadID
		}
		if eventsType != "" {
			t := models.EventType(eventsType)
			query.Type = &t
		}

		events, err := repo.Query(cmd.Context(), query)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIMESTAMP\tTYPE\tENTITY\tPAYLOAD")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s/%s\t%s\n",
				e.Timestamp.Format(time.RFC3339),
				e.Type,
				e.EntityType,
				e.EntityID,
				string(e.Payload),
			)
		}
		return w.Flush()
	},
}
