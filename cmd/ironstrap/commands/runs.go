package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ironstrap/ironstrap/pkg/journal"
)

func newRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded install runs",
	}

	cmd.AddCommand(newRunsListCommand())
	cmd.AddCommand(newRunsShowCommand())

	return cmd
}

func newRunsListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List install runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := journal.Open(cmd.Context(), journalPath)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit, 0)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tHOSTNAME\tTARGET\tSTATUS\tSTARTED\tERROR")
			for _, run := range runs {
				errMsg := ""
				if run.Error != nil {
					errMsg = *run.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					run.ID, run.Hostname, run.Target, run.Status,
					run.StartedAt.Format(time.RFC3339), errMsg)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")

	return cmd
}

func newRunsShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the steps of an install run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := journal.Open(cmd.Context(), journalPath)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			steps, err := store.ListSteps(cmd.Context(), run.ID)
			if err != nil {
				return err
			}

			fmt.Printf("Run %s (%s on %s): %s\n\n", run.ID, run.Hostname, run.Target, run.Status)

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SEQ\tSTEP\tSTATUS\tDURATION\tERROR")
			for _, s := range steps {
				duration := ""
				if s.StartedAt != nil && s.CompletedAt != nil {
					duration = s.CompletedAt.Sub(*s.StartedAt).Round(time.Millisecond).String()
				}
				errMsg := ""
				if s.Error != nil {
					errMsg = *s.Error
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", s.Seq, s.Name, s.Status, duration, errMsg)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			events, err := store.ListEvents(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if len(events) > 0 {
				fmt.Println()
				for _, e := range events {
					fmt.Printf("%s [%s] %s\n", e.Timestamp.Format(time.RFC3339), e.Level, e.Message)
				}
			}
			return nil
		},
	}

	return cmd
}
