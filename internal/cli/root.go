package cli

import (
	"github.com/spf13/cobra"

	"github.com/ashokba6266/s3-vpc-endpoint/internal/logging"
)

var (
	flagConfig   string
	flagState    string
	flagReport   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "s3vpce",
	Short: "Provision and validate a private S3 path through a VPC gateway endpoint",
	Long: `s3vpce builds an isolated VPC whose instances reach S3 privately through
a gateway endpoint, then proves the path works.

The subcommands run in order:
  • setup-network          VPC, subnets, route table, security group
  • create-endpoint        S3 gateway endpoint, test bucket, bucket policy
  • deploy-test-instances  instance role, profile, one instance per subnet
  • run-connectivity-tests S3 round-trip from each instance over the endpoint
  • cleanup                delete everything, newest first

Every run is idempotent: resources that already exist are skipped, and all
identifiers are tracked in a state document so a later run picks up where an
earlier one stopped.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(flagLogLevel)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to the configuration file (default s3vpce.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagState, "state", "", "Override the state document path")
	rootCmd.PersistentFlags().StringVar(&flagReport, "report", "", "Override the report document path")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(setupNetworkCmd)
	rootCmd.AddCommand(createEndpointCmd)
	rootCmd.AddCommand(deployTestInstancesCmd)
	rootCmd.AddCommand(runConnectivityTestsCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}
