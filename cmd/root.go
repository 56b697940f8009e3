package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "route-attendance",
	Short: "Face-matching attendance for school bus routes",
	Long: `Route Attendance records daily attendance on school bus routes by matching
a rider's face embedding against the templates enrolled on the route.

Every attempt is decided as matched, no match, ambiguous or no candidates,
written to an audit log, and at most one attendance record is kept per
identity and day.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
