package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/journalpost/cmd/cli/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func apiClient() *client.APIClient {
	return client.NewAPIClient(viper.GetString("server"))
}

func newRegisterCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Register and receive an API key (shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := apiClient().Register()
			if err != nil {
				return err
			}
			fmt.Printf("User ID: %s\n", reg.UserID)
			fmt.Printf("API key: %s\n", reg.APIKey)
			fmt.Println("Store this key now; it cannot be shown again.")
			return nil
		},
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			scheds, err := apiClient().ListSchedules()
			if err != nil {
				return err
			}
			if len(scheds) == 0 {
				fmt.Println("No schedules.")
				return nil
			}
			for _, s := range scheds {
				state := "scheduled"
				if s.Executed {
					state = "executed"
				}
				fmt.Printf("%s  %-24s  %s  fires %s  %d entries  %d recipients\n",
					s.ID, s.Name, state, s.ExecutionTime.Format("2006-01-02 15:04:05"),
					s.EntryCount, len(s.Recipients))
			}
			return nil
		},
	}
}

func newCreateCommand() *cobra.Command {
	var (
		name        string
		delay       time.Duration
		passphrase  string
		recipients  []string
		entriesPath string
		selectType  string
		ids         []string
		start, end  string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a schedule from a JSON entries file",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := os.ReadFile(entriesPath)
			if err != nil {
				return err
			}

			req := &client.CreateScheduleRequest{
				Name:           name,
				DelayMS:        delay.Milliseconds(),
				EntriesData:    json.RawMessage(snapshot),
				Passphrase:     passphrase,
				EntrySelection: client.Selection{Type: selectType, IDs: ids},
			}
			if start != "" {
				ts, err := time.Parse(time.RFC3339, start)
				if err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
				req.EntrySelection.Start = &ts
			}
			if end != "" {
				ts, err := time.Parse(time.RFC3339, end)
				if err != nil {
					return fmt.Errorf("invalid --end: %w", err)
				}
				req.EntrySelection.End = &ts
			}
			for _, r := range recipients {
				channel, address, ok := strings.Cut(r, ":")
				if !ok {
					return fmt.Errorf("recipient %q must be channel:address", r)
				}
				req.Recipients = append(req.Recipients, client.Recipient{
					Channel: channel,
					Address: address,
				})
			}

			s, err := apiClient().CreateSchedule(req)
			if err != nil {
				return err
			}
			fmt.Printf("Schedule %s created; fires %s\n",
				s.ID, s.ExecutionTime.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "schedule name")
	cmd.Flags().DurationVar(&delay, "delay", time.Hour, "delay before the export fires (e.g. 72h)")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "passphrase sealing the snapshot")
	cmd.Flags().StringSliceVar(&recipients, "recipient", nil, "recipient as channel:address (repeatable)")
	cmd.Flags().StringVar(&entriesPath, "entries", "", "path to a JSON file with the entry snapshot")
	cmd.Flags().StringVar(&selectType, "select", "all", "entry selection: all, specific or date_range")
	cmd.Flags().StringSliceVar(&ids, "id", nil, "entry IDs for --select specific (repeatable)")
	cmd.Flags().StringVar(&start, "start", "", "RFC3339 range start for --select date_range")
	cmd.Flags().StringVar(&end, "end", "", "RFC3339 range end for --select date_range")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("passphrase")
	cmd.MarkFlagRequired("entries")
	cmd.MarkFlagRequired("recipient")
	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <schedule-id>",
		Short: "Show a schedule with its execution history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := apiClient().GetSchedule(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Name:       %s\n", s.Name)
			fmt.Printf("Fires:      %s\n", s.ExecutionTime.Format("2006-01-02 15:04:05"))
			fmt.Printf("Entries:    %d\n", s.EntryCount)
			fmt.Printf("Executed:   %v\n", s.Executed)
			for _, r := range s.Recipients {
				fmt.Printf("Recipient:  %s (%s)\n", r.Address, r.Channel)
			}
			for _, l := range s.Logs {
				line := fmt.Sprintf("Attempt:    %s  started %s  sent %d/%d",
					l.Status, l.StartedAt.Format("2006-01-02 15:04:05"),
					l.RecipientsSent, len(s.Recipients))
				if l.ErrorMessage != "" {
					line += "  error: " + l.ErrorMessage
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func newExecuteCommand() *cobra.Command {
	var passphrase string
	cmd := &cobra.Command{
		Use:   "execute <schedule-id>",
		Short: "Trigger immediate execution of a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient().ExecuteSchedule(args[0], passphrase); err != nil {
				return err
			}
			fmt.Println("Execution started; check `show` for the result.")
			return nil
		},
	}
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "passphrase override for decryption")
	return cmd
}

func newResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <schedule-id>",
		Short: "Re-arm a schedule to fire after its original delay from now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := apiClient().ResetSchedule(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Schedule %s re-armed; fires %s\n", s.ID, s.ExecutionTime.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <schedule-id>",
		Short: "Delete a schedule and its execution history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient().DeleteSchedule(args[0]); err != nil {
				return err
			}
			fmt.Println("Schedule deleted.")
			return nil
		},
	}
}
