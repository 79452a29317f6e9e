package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	gocmd "github.com/goliatone/go-command"
	smscommand "github.com/goliatone/go-smshook/command"
	"github.com/goliatone/go-smshook/core"
	smsquery "github.com/goliatone/go-smshook/query"
	"github.com/goliatone/go-smshook/reassembly"
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, _, err := loadConfig(ctx, opts.configPath)
			if err != nil {
				return err
			}
			client, err := openDatabase(cfg.Database)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := migrate(ctx, client, cfg.Database.Driver); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied (%s)\n", cfg.Database.Driver)
			return nil
		},
	}
}

func newPurgeCmd(opts *rootOptions) *cobra.Command {
	var staleAfter time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove stale partial groups and expired delivery records",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.configPath, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			msg := smscommand.PurgeMessage{StaleAfter: staleAfter}
			if err := msg.Validate(); err != nil {
				return err
			}
			collector := gocmd.NewResult[reassembly.PurgeReport]()
			if err := a.runtime.Commands().Purge.Execute(gocmd.ContextWithResult(ctx, collector), msg); err != nil {
				return err
			}
			report, _ := collector.Load()
			printPurgeReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().DurationVar(&staleAfter, "stale-after", 0, "override reassembly.stale_after for this run")
	return cmd
}

func newPendingCmd(opts *rootOptions) *cobra.Command {
	var (
		minIdle time.Duration
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List partial message groups awaiting fragments",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.configPath, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			groups, err := a.runtime.Queries().PendingGroups.Query(ctx, smsquery.PendingGroupsMessage{MinIdle: minIdle, Limit: limit})
			if err != nil {
				return err
			}
			printPendingGroups(cmd.OutOrStdout(), groups)
			return nil
		},
	}
	cmd.Flags().DurationVar(&minIdle, "min-idle", 0, "only list groups idle for at least this long")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of groups to list (0 lists all)")
	return cmd
}

func printPurgeReport(w io.Writer, report reassembly.PurgeReport) {
	fmt.Fprintf(w, "Purged %d stale part(s) and %d expired delivery record(s)", report.StaleParts, report.ExpiredDeliveries)
	if !report.Cutoff.IsZero() {
		fmt.Fprintf(w, " older than %s", report.Cutoff.UTC().Format(time.RFC3339))
	}
	fmt.Fprintln(w)
}

func printPendingGroups(w io.Writer, groups []core.PendingGroup) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "No pending groups.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REF\tFROM\tTO\tRECEIVED\tTOTAL\tLAST SEEN")
	for _, group := range groups {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			group.Ref,
			group.Sender,
			group.Recipient,
			group.Received,
			group.Total,
			group.LastSeen.UTC().Format(time.RFC3339),
		)
	}
	_ = tw.Flush()
}
