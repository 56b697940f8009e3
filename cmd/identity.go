package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/route-attendance/internal/constants"
	"github.com/kozaktomas/route-attendance/internal/database"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Inspect and manage enrolled identities",
}

var identityFindCmd = &cobra.Command{
	Use:   "find <name>",
	Short: "Find identities by name, ignoring case and diacritics",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentityFind,
}

var identityHistoryCmd = &cobra.Command{
	Use:   "history <identity-id>",
	Short: "Show the attendance history of an identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentityHistory,
}

var identityStatusCmd = &cobra.Command{
	Use:   "status <identity-id>",
	Short: "Show whether an identity is marked present on a day",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentityStatus,
}

var identityDeactivateCmd = &cobra.Command{
	Use:   "deactivate <identity-id>",
	Short: "Exclude an identity from matching",
	Long: `Exclude an identity from matching. Its attendance records and audit
entries are kept; enrolling the identity again reactivates it.`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentityDeactivate,
}

func init() {
	rootCmd.AddCommand(identityCmd)
	identityCmd.AddCommand(identityFindCmd)
	identityCmd.AddCommand(identityHistoryCmd)
	identityCmd.AddCommand(identityStatusCmd)
	identityCmd.AddCommand(identityDeactivateCmd)

	identityHistoryCmd.Flags().Int("limit", constants.DefaultHistoryLimit, "Maximum number of records")
	identityHistoryCmd.Flags().Bool("json", false, "Output as JSON")

	identityStatusCmd.Flags().String("date", "", "Day as YYYY-MM-DD (default today)")
}

func runIdentityFind(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	identities, err := a.service.FindIdentities(ctx, args[0])
	if err != nil {
		return err
	}
	if len(identities) == 0 {
		fmt.Println("No identities found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tROUTE\tACTIVE")
	fmt.Fprintln(w, "--\t----\t-----\t------")
	for _, i := range identities {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", i.ID, i.Name, i.RouteID, i.Active)
	}
	return w.Flush()
}

func runIdentityHistory(cmd *cobra.Command, args []string) error {
	limit := mustGetInt(cmd, "limit")

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.service.History(ctx, args[0], limit)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(records)
	}

	if len(records) == 0 {
		fmt.Println("No attendance recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tROUTE\tSCORE\tRECORDED")
	fmt.Fprintln(w, "----\t-----\t-----\t--------")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%s\n", r.Date, r.RouteID, r.Score, r.CreatedAt.Format("15:04:05"))
	}
	return w.Flush()
}

func runIdentityStatus(cmd *cobra.Command, args []string) error {
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

	rec, err := a.service.Status(ctx, args[0], date)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Printf("%s is not marked on %s\n", args[0], date)
		return nil
	}
	fmt.Printf("%s is present on %s (route %s, score %.4f, recorded %s)\n",
		args[0], date, rec.RouteID, rec.Score, rec.CreatedAt.In(a.cfg.Attendance.Location).Format("15:04:05"))
	return nil
}

func runIdentityDeactivate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.service.Deactivate(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deactivated %s\n", args[0])
	return nil
}
