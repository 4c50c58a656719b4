package cli

import (
	"github.com/spf13/cobra"

	"github.com/ashokba6266/s3-vpc-endpoint/internal/aws"
)

var setupNetworkCmd = &cobra.Command{
	Use:   "setup-network",
	Short: "Provision the VPC, subnets, route table and security group",
	Long: `Builds the network foundation: an isolated VPC with DNS support, one
private subnet per configured entry, a route table associated with every
subnet, and a security group allowing SSH from inside the VPC only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return provisionStage(cmd.Context(), "setup-network", aws.NetworkSteps)
	},
}

var createEndpointCmd = &cobra.Command{
	Use:   "create-endpoint",
	Short: "Provision the S3 gateway endpoint, test bucket and bucket policy",
	Long: `Creates the S3 gateway endpoint on the private route table, the
validation bucket, and a bucket policy that denies object access from
anywhere but the endpoint.

Requires the network from 'setup-network'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return provisionStage(cmd.Context(), "create-endpoint", aws.EndpointSteps)
	},
}

var deployTestInstancesCmd = &cobra.Command{
	Use:   "deploy-test-instances",
	Short: "Launch one test instance per subnet",
	Long: `Creates the instance role and profile, then launches one test instance
in each configured subnet and waits for them to reach the running state.

Requires the network from 'setup-network'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return provisionStage(cmd.Context(), "deploy-test-instances", aws.ComputeSteps)
	},
}
