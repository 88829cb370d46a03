package cli

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/justsurfingit/inbox-job-tracker/internal/auth"
	"github.com/justsurfingit/inbox-job-tracker/internal/models"
	"github.com/justsurfingit/inbox-job-tracker/internal/services"
	"github.com/olekukonko/tablewriter"
)

const dateLayout = "2006-01-02"

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(out)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	t.SetBorder(false)
	return t
}

func renderApplications(out io.Writer, apps []models.Application) {
	if len(apps) == 0 {
		fmt.Fprintln(out, "No applications found.")
		return
	}
	t := newTable(out, "ID", "Company", "Title", "Platform", "Status", "Applied", "Edited")
	for _, a := range apps {
		edited := ""
		if a.ManuallyEdited {
			edited = "yes"
		}
		t.Append([]string{
			strconv.FormatUint(uint64(a.ID), 10),
			a.CompanyName,
			a.JobTitle,
			string(a.Platform),
			string(a.Status),
			a.AppliedAt.Format(dateLayout),
			edited,
		})
	}
	t.Render()
	fmt.Fprintf(out, "%d application(s)\n", len(apps))
}

func renderStats(out io.Writer, s services.Stats) {
	fmt.Fprintf(out, "Total applications: %d\n\n", s.Total)
	if s.Total == 0 {
		return
	}

	t := newTable(out, "Status", "Count")
	for _, st := range models.Statuses {
		if n := s.ByStatus[st]; n > 0 {
			t.Append([]string{string(st), strconv.FormatInt(n, 10)})
		}
	}
	t.Render()
	fmt.Fprintln(out)

	platforms := make([]models.Platform, 0, len(s.ByPlatform))
	for p := range s.ByPlatform {
		platforms = append(platforms, p)
	}
	slices.SortFunc(platforms, func(a, b models.Platform) int {
		return cmp.Or(cmp.Compare(s.ByPlatform[b], s.ByPlatform[a]), cmp.Compare(a, b))
	})
	t = newTable(out, "Platform", "Count")
	for _, p := range platforms {
		t.Append([]string{string(p), strconv.FormatInt(s.ByPlatform[p], 10)})
	}
	t.Render()
}

func renderUsers(out io.Writer, users []models.User) {
	if len(users) == 0 {
		fmt.Fprintln(out, "No users yet. Run `tracker connect --user you@gmail.com`.")
		return
	}
	t := newTable(out, "ID", "Email", "Gmail", "Last scan")
	for _, u := range users {
		connected := "not connected"
		if u.Connected() {
			connected = "connected"
		}
		last := "never"
		if u.LastScanAt != nil {
			last = u.LastScanAt.Local().Format("2006-01-02 15:04")
		}
		t.Append([]string{strconv.FormatUint(uint64(u.ID), 10), u.Email, connected, last})
	}
	t.Render()
}

func renderReports(out io.Writer, reports []services.ScanReport) {
	t := newTable(out, "User", "Fetched", "Created", "Updated", "Unchanged", "Skipped", "Not apps", "Parse errs", "Deferred", "Seen", "Truncated")
	for _, r := range reports {
		t.Append([]string{
			strconv.FormatUint(uint64(r.UserID), 10),
			strconv.Itoa(r.Fetched),
			strconv.Itoa(r.Created),
			strconv.Itoa(r.Updated),
			strconv.Itoa(r.Unchanged),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.NotApplications),
			strconv.Itoa(r.ParseErrors),
			strconv.Itoa(r.Deferred),
			strconv.Itoa(r.AlreadyProcessed),
			strconv.FormatBool(r.Truncated),
		})
	}
	t.Render()

	for _, r := range reports {
		switch {
		case auth.IsAuthError(r.Err):
			fmt.Fprintf(out, "user %d: Gmail access lost, run `tracker connect` again (%v)\n", r.UserID, r.Err)
		case r.Err != nil:
			fmt.Fprintf(out, "user %d: scan failed: %v\n", r.UserID, r.Err)
		case r.Truncated:
			fmt.Fprintf(out, "user %d: hit MAX_EMAILS_PER_CHECK, older messages were not read\n", r.UserID)
		}
		if r.Deferred > 0 {
			fmt.Fprintf(out, "user %d: %d message(s) deferred to the next scan\n", r.UserID, r.Deferred)
		}
	}
}
