package cli

import (
	"fmt"

	"github.com/outflow-crm/outflow/internal/db"
	"github.com/outflow-crm/outflow/internal/events"
	"github.com/outflow-crm/outflow/internal/models"
	"github.com/spf13/cobra"
)

var (
	leadsReplyNote        string
	leadsFlagUnsubscribed bool
	leadsFlagDoNotContact bool
	leadsFlagConverted    bool
	leadsFlagMeeting      bool
)

func init() {
	rootCmd.AddCommand(leadsCmd)
	leadsCmd.AddCommand(leadsReplyCmd)
	leadsCmd.AddCommand(leadsFlagCmd)

	leadsReplyCmd.Flags().StringVar(&leadsReplyNote, "note", "", "description recorded with the reply")
	leadsFlagCmd.Flags().BoolVar(&leadsFlagUnsubscribed, "unsubscribed", false, "mark the lead unsubscribed")
	leadsFlagCmd.Flags().BoolVar(&leadsFlagDoNotContact, "do-not-contact", false, "mark the lead do-not-contact")
	leadsFlagCmd.Flags().BoolVar(&leadsFlagConverted, "converted", false, "mark the lead converted")
	leadsFlagCmd.Flags().BoolVar(&leadsFlagMeeting, "meeting-scheduled", false, "mark a meeting as scheduled")
}

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Record lead signals consumed by the engine",
}

var leadsReplyCmd = &cobra.Command{
	Use:   "reply <lead-id>",
	Short: "Record an inbound reply from a lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		repo := db.NewActivityRepository(database)
		activity := &models.Activity{
			LeadID:      args[0],
			Type:        models.ActivityTypeReply,
			Direction:   models.ActivityDirectionInbound,
			Description: leadsReplyNote,
		}
		if err := repo.Record(cmd.Context(), activity); err != nil {
			return err
		}
		if err := events.LogActivityRecorded(cmd.Context(), db.NewEventRepository(database), activity); err != nil {
			return err
		}
		fmt.Printf("reply recorded for lead %s\n", args[0])
		return nil
	},
}

var leadsFlagCmd = &cobra.Command{
	Use:   "flag <lead-id>",
	Short: "Set lead flags checked by stop conditions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		repo := db.NewLeadFlagRepository(database)
		flags, err := repo.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if leadsFlagUnsubscribed {
			flags.Unsubscribed = true
		}
		if leadsFlagDoNotContact {
			flags.DoNotContact = true
		}
		if leadsFlagConverted {
			flags.Converted = true
		}
		if leadsFlagMeeting {
			flags.MeetingScheduled = true
		}

		if err := repo.Set(cmd.Context(), args[0], flags); err != nil {
			return err
		}
		fmt.Printf("flags updated for lead %s\n", args[0])
		return nil
	},
}
