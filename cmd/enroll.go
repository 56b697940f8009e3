package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/route-attendance/internal/attendance"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <route-id> <identity-id>",
	Short: "Enroll an identity into a route",
	Long: `Enroll an identity into a route from a photograph or an embedding vector.

Re-enrolling an existing identity replaces its template and reactivates it.

Examples:
  route-attendance enroll north-loop 20231234 --name "Jana Nováková" --image jana.jpg
  route-attendance enroll north-loop 20231234 --name "Jana" --embedding-file jana.json --secret 1234`,
	Args: cobra.ExactArgs(2),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("name", "", "Display name of the identity")
	enrollCmd.Flags().String("secret", "", "Route secret, when the route has one")
	addProbeFlags(enrollCmd)
}

func runEnroll(cmd *cobra.Command, args []string) error {
	probe, err := readProbe(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	identity, err := a.service.Enroll(ctx, attendance.EnrollRequest{
		RouteID:    args[0],
		IdentityID: args[1],
		Name:       mustGetString(cmd, "name"),
		Secret:     mustGetString(cmd, "secret"),
		Embedding:  probe.Embedding,
		Image:      probe.Image,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Enrolled %s (%s) into %s with a %d-dimensional template\n",
		identity.ID, identity.Name, identity.RouteID, len(identity.Embedding))
	return nil
}
