package cmd

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/route-attendance/internal/constants"
)

var auditCmd = &cobra.Command{
	Use:   "audit <route-id>",
	Short: "Show the newest match attempts of a route",
	Args:  cobra.ExactArgs(1),
	RunE:  runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().Int("limit", constants.DefaultAuditLimit, "Maximum number of entries")
	auditCmd.Flags().Bool("json", false, "Output as JSON")
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.service.AuditLog(ctx, args[0], min(mustGetInt(cmd, "limit"), constants.MaxListLimit))
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No audit entries.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tOUTCOME\tIDENTITY\tSCORE\tRUNNER-UP\tCANDIDATES\tDIAGNOSTIC")
	fmt.Fprintln(w, "----\t-------\t--------\t-----\t---------\t----------\t----------")
	for _, e := range entries {
		identity := "-"
		if e.IdentityID != nil {
			identity = *e.IdentityID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.Outcome, identity,
			formatScore(e.Score), formatScore(e.RunnerUpScore), e.CandidateCount, e.Diagnostic)
	}
	return w.Flush()
}

func formatScore(s *float64) string {
	if s == nil {
		return "-"
	}
	return strconv.FormatFloat(*s, 'f', 4, 64)
}
