package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/justsurfingit/inbox-job-tracker/internal/auth"
	"github.com/justsurfingit/inbox-job-tracker/internal/models"
	"github.com/justsurfingit/inbox-job-tracker/internal/services"
	"github.com/spf13/cobra"
)

func scanCmd(st *state) *cobra.Command {
	var (
		days      int
		reprocess bool
		all       bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the mailbox for job application emails",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := st.app.Pipeline(ctx)
			if err != nil {
				return err
			}
			opts := services.Options{WindowDays: days, Reprocess: reprocess}

			var reports []services.ScanReport
			if all {
				reports, err = p.Sweep(ctx, opts)
				if err != nil {
					return err
				}
			} else {
				u, err := st.user(cmd)
				if err != nil {
					return err
				}
				reports = []services.ScanReport{p.Run(ctx, u.ID, opts)}
			}

			renderReports(st.out, reports)
			for _, r := range reports {
				if r.Err != nil {
					return errors.New("scan finished with errors")
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "lookback window in days (default LOOKBACK_DAYS)")
	cmd.Flags().BoolVar(&reprocess, "reprocess", false, "re-extract messages that were already processed")
	cmd.Flags().BoolVar(&all, "all", false, "scan every user")
	return cmd
}

func listCmd(st *state) *cobra.Command {
	var limit, days int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked applications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := st.user(cmd)
			if err != nil {
				return err
			}
			f := services.ApplicationFilter{Limit: limit}
			if days > 0 {
				f.Since = time.Now().AddDate(0, 0, -days)
			}
			apps, err := st.app.Apps.List(cmd.Context(), u.ID, f)
			if err != nil {
				return err
			}
			renderApplications(st.out, apps)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to show")
	cmd.Flags().IntVar(&days, "days", 0, "only applications from the last N days")
	return cmd
}

func searchCmd(st *state) *cobra.Command {
	var f services.ApplicationFilter
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search applications by company, status or platform",
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := st.user(cmd)
			if err != nil {
				return err
			}
			if f.Company == "" && f.Status == "" && f.Platform == "" {
				return errors.New("give at least one of --company, --status, --platform")
			}
			apps, err := st.app.Apps.List(cmd.Context(), u.ID, f)
			if err != nil {
				return err
			}
			renderApplications(st.out, apps)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.Company, "company", "", "company name contains")
	cmd.Flags().StringVar(&f.Status, "status", "", "status contains")
	cmd.Flags().StringVar(&f.Platform, "platform", "", "platform contains")
	return cmd
}

func updateCmd(st *state) *cobra.Command {
	var (
		id     uint
		status string
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Set an application's status by hand",
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := st.user(cmd)
			if err != nil {
				return err
			}
			s, err := models.ParseStatus(status)
			if err != nil {
				return err
			}
			app, err := st.app.Apps.UpdateStatus(cmd.Context(), u.ID, id, s)
			if errors.Is(err, services.ErrNotFound) {
				return fmt.Errorf("application %d not found", id)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(st.out, "Updated application %d (%s at %s) to %s\n", app.ID, app.JobTitle, app.CompanyName, app.Status)
			return nil
		},
	}
	cmd.Flags().UintVar(&id, "id", 0, "application id")
	cmd.Flags().StringVar(&status, "status", "", "new status (applied, interview, rejected, offer, withdrawn)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func statsCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show application counts by status and platform",
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := st.user(cmd)
			if err != nil {
				return err
			}
			s, err := st.app.Apps.Stats(cmd.Context(), u.ID)
			if err != nil {
				return err
			}
			renderStats(st.out, s)
			return nil
		},
	}
}

func usersCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List known users",
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := st.app.Users.List(cmd.Context())
			if err != nil {
				return err
			}
			renderUsers(st.out, users)
			return nil
		},
	}
}

func connectCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Authorize read-only Gmail access for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if st.email == "" {
				return errors.New("--user is required")
			}
			if st.app.OAuth == nil {
				return fmt.Errorf("no OAuth client configured; download credentials.json from Google Cloud and set GMAIL_CREDENTIALS_FILE")
			}
			ctx := cmd.Context()
			u, err := st.app.Users.GetOrCreate(ctx, st.email)
			if err != nil {
				return err
			}
			tok, err := auth.ConnectInteractive(ctx, st.app.OAuth, uuid.NewString(), st.in, st.out)
			if err != nil {
				return err
			}
			if err := st.app.Credentials.Save(ctx, u.ID, tok); err != nil {
				return err
			}
			fmt.Fprintf(st.out, "\nGmail connected for %s\n", u.Email)
			return nil
		},
	}
}

func disconnectCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Forget a user's stored Gmail token",
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := st.user(cmd)
			if err != nil {
				return err
			}
			if err := st.app.Credentials.Clear(cmd.Context(), u.ID); err != nil {
				return err
			}
			fmt.Fprintf(st.out, "Gmail disconnected for %s\n", u.Email)
			return nil
		},
	}
}
