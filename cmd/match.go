package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/route-attendance/internal/attendance"
)

var matchCmd = &cobra.Command{
	Use:   "match <route-id>",
	Short: "Submit a probe and record attendance",
	Long: `Match a probe against the identities enrolled on a route and record
attendance for the matched identity. The attempt is written to the audit log
regardless of the outcome.

--at sets the submission time used to pick the attendance day, for backfilling
attempts captured offline. It defaults to now.

Examples:
  route-attendance match north-loop --image probe.jpg
  route-attendance match north-loop --embedding-file probe.json --json
  route-attendance match north-loop --image probe.jpg --at 2024-09-02T07:45:00+02:00`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	addProbeFlags(matchCmd)
	matchCmd.Flags().String("at", "", "Submission time in RFC 3339 (default now)")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
}

func runMatch(cmd *cobra.Command, args []string) error {
	probe, err := readProbe(cmd)
	if err != nil {
		return err
	}

	var submittedAt time.Time
	if at := mustGetString(cmd, "at"); at != "" {
		if submittedAt, err = time.Parse(time.RFC3339, at); err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var result attendance.Result
	if probe.Image != nil {
		result, err = a.service.AttendImage(ctx, args[0], probe.Image, submittedAt)
	} else {
		result, err = a.service.Attend(ctx, args[0], probe.Embedding, submittedAt)
	}
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(result)
	}

	switch result.Outcome {
	case attendance.ResultMatched:
		fmt.Printf("Matched %s (%s), score %.4f, recorded at %s\n",
			result.IdentityID, result.Name, *result.Score, result.RecordTimestamp.Format(time.RFC3339))
	case attendance.ResultAlreadyMarked:
		fmt.Printf("Already marked: %s (%s) at %s\n",
			result.IdentityID, result.Name, result.RecordTimestamp.Format(time.RFC3339))
	case attendance.ResultNoMatch:
		fmt.Println("No match: no enrolled identity is close enough")
	case attendance.ResultAmbiguous:
		fmt.Println("Ambiguous: the two best candidates are too close to tell apart")
	case attendance.ResultNoCandidates:
		fmt.Println("No candidates: nobody is enrolled on this route")
	}
	return nil
}
