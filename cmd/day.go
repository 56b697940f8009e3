package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/route-attendance/internal/database"
)

var dayCmd = &cobra.Command{
	Use:   "day <route-id>",
	Short: "Show who was present on a route on a given day",
	Long: `Show the attendance of a route for one calendar day in ATTENDANCE_TIMEZONE.

Examples:
  route-attendance day north-loop
  route-attendance day north-loop --date 2024-09-02 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runDay,
}

func init() {
	rootCmd.AddCommand(dayCmd)

	dayCmd.Flags().String("date", "", "Day as YYYY-MM-DD (default today)")
	dayCmd.Flags().Bool("json", false, "Output as JSON")
}

func runDay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	date := a.service.Today()
	if s := mustGetString(cmd, "date"); s != "" {
		if date, err = database.ParseDate(s); err != nil {
			return err
		}
	}

	day, err := a.service.Day(ctx, args[0], date)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(day)
	}

	fmt.Printf("Route %s on %s: %d present, %d absent of %d enrolled\n\n",
		day.RouteID, day.Date, day.Present, day.Absent, day.Total)
	if len(day.Records) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IDENTITY\tNAME\tSCORE\tRECORDED")
	fmt.Fprintln(w, "--------\t----\t-----\t--------")
	for _, r := range day.Records {
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%s\n",
			r.IdentityID, r.Name, r.Score, r.CreatedAt.In(a.cfg.Attendance.Location).Format("15:04:05"))
	}
	return w.Flush()
}
