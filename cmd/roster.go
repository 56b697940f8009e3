package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/route-attendance/internal/attendance"
	"github.com/kozaktomas/route-attendance/internal/constants"
	"github.com/kozaktomas/route-attendance/internal/database/mariadb"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Work with the legacy student roster",
}

var rosterImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import students and face encodings from the legacy MariaDB roster",
	Long: `Import the legacy students table from LEGACY_DATABASE_URL.

A route is created for every bus number ("bus-<n>") and every student with a
decodable face encoding of FACE_EMBEDDING_DIM components is enrolled on the
route of their bus. Students that cannot be enrolled are listed at the end.

Examples:
  # Preview the import without writing anything
  route-attendance roster import --dry-run

  # Import
  route-attendance roster import`,
	Args: cobra.NoArgs,
	RunE: runRosterImport,
}

func init() {
	rootCmd.AddCommand(rosterCmd)
	rosterCmd.AddCommand(rosterImportCmd)

	rosterImportCmd.Flags().Bool("dry-run", false, "Validate the roster without writing")
	rosterImportCmd.Flags().Bool("json", false, "Output the report as JSON")
}

func runRosterImport(cmd *cobra.Command, args []string) error {
	dryRun := mustGetBool(cmd, "dry-run")
	jsonOutput := mustGetBool(cmd, "json")

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	legacy, err := mariadb.NewPool(a.cfg.Legacy.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to legacy roster: %w", err)
	}
	defer legacy.Close()

	total, err := legacy.CountStudents(ctx)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Importing roster"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("students"),
			progressbar.OptionThrottle(constants.ProgressThrottle),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	start := time.Now()
	report, err := a.service.ImportRoster(ctx, legacy, attendance.ImportOptions{
		DryRun: dryRun,
		OnProgress: func(mariadb.LegacyStudent) {
			if bar != nil {
				_ = bar.Add(1)
			}
		},
	})
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("roster import failed: %w", err)
	}

	if jsonOutput {
		return outputJSON(report)
	}

	if dryRun {
		fmt.Println("Dry run: nothing was written")
	}
	fmt.Printf("Routes created: %d\n", len(report.RoutesCreated))
	fmt.Printf("Enrolled:       %d\n", report.Enrolled)
	fmt.Printf("Skipped:        %d\n", len(report.Skipped))
	fmt.Printf("Took:           %s\n", time.Since(start).Round(time.Millisecond))

	if len(report.Skipped) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STUDENT\tREASON")
		fmt.Fprintln(w, "-------\t------")
		for _, s := range report.Skipped {
			fmt.Fprintf(w, "%s\t%s\n", s.UniversityID, s.Reason)
		}
		return w.Flush()
	}
	return nil
}
