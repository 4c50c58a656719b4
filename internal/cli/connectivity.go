package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/ashokba6266/s3-vpc-endpoint/internal/state"
	"github.com/ashokba6266/s3-vpc-endpoint/internal/verify"
)

var runConnectivityTestsCmd = &cobra.Command{
	Use:   "run-connectivity-tests",
	Short: "Verify the instances reach S3 through the gateway endpoint",
	Long: `Checks that the endpoint is available and wired to the route table, then
runs an S3 write/read round-trip from inside every test instance via SSM.
The bucket policy only admits traffic from the endpoint, so a passing
round-trip proves the private path.

Requires the full stack from the three provisioning subcommands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		r, err := openRun(ctx, "run-connectivity-tests", true)
		if err != nil {
			return err
		}
		defer r.close()

		v := verify.New(r.clients, r.cfg, r.reporter)
		err = v.Run(ctx, r.store)
		r.finish()
		if err != nil {
			// A missing prerequisite means an earlier stage never ran; that
			// is a hard failure, not a failed check.
			var missing *state.MissingDependencyError
			if errors.As(err, &missing) {
				return err
			}
			return &PartialError{Reason: "connectivity checks failed", Err: err}
		}
		return nil
	},
}
