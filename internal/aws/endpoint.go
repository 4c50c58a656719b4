package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/ashokba6266/s3-vpc-endpoint/internal/config"
	"github.com/ashokba6266/s3-vpc-endpoint/internal/state"
)

// RoleEndpoint is the state role of the S3 gateway endpoint.
const RoleEndpoint = "s3-endpoint"

// GatewayEndpointStep provisions the S3 gateway VPC endpoint and attaches it
// to the private route table, which is what gives the subnets a private path
// to S3.
type GatewayEndpointStep struct {
	clients *Clients
	cfg     *config.Config
}

func NewGatewayEndpointStep(clients *Clients, cfg *config.Config) *GatewayEndpointStep {
	return &GatewayEndpointStep{clients: clients, cfg: cfg}
}

func (s *GatewayEndpointStep) Name() string        { return "s3-gateway-endpoint" }
func (s *GatewayEndpointStep) DependsOn() []string { return []string{RoleVPC, RoleRouteTable} }
func (s *GatewayEndpointStep) Produces() []string  { return []string{RoleEndpoint} }

// ServiceName returns the S3 service name for the configured region.
func (s *GatewayEndpointStep) ServiceName() string {
	return fmt.Sprintf("com.amazonaws.%s.s3", s.cfg.Region)
}

func (s *GatewayEndpointStep) Exists(ctx context.Context, st *state.Store) (bool, error) {
	if !st.Has(RoleEndpoint) {
		return false, nil
	}
	id, _ := st.Get(RoleEndpoint)
	resp, err := s.clients.EC2.DescribeVpcEndpoints(ctx, &ec2.DescribeVpcEndpointsInput{
		VpcEndpointIds: []string{id},
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to describe VPC endpoint %s: %w", id, err)
	}
	for _, ep := range resp.VpcEndpoints {
		// A deleted endpoint lingers in describe output for a while.
		if ep.State != types.StateDeleted && ep.State != types.StateDeleting {
			return true, nil
		}
	}
	return false, nil
}

func (s *GatewayEndpointStep) Create(ctx context.Context, st *state.Store) (map[string]string, error) {
	vpcID, err := st.Get(RoleVPC)
	if err != nil {
		return nil, err
	}
	rtID, err := st.Get(RoleRouteTable)
	if err != nil {
		return nil, err
	}

	resp, err := s.clients.EC2.CreateVpcEndpoint(ctx, &ec2.CreateVpcEndpointInput{
		VpcId:             awssdk.String(vpcID),
		ServiceName:       awssdk.String(s.ServiceName()),
		VpcEndpointType:   types.VpcEndpointTypeGateway,
		RouteTableIds:     []string{rtID},
		TagSpecifications: tagSpec(types.ResourceTypeVpcEndpoint, s.clients.resourceTags(s.cfg, s.cfg.ResourceName("s3-endpoint"))),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 gateway endpoint: %w", err)
	}
	if resp.VpcEndpoint == nil || resp.VpcEndpoint.VpcEndpointId == nil {
		return nil, fmt.Errorf("CreateVpcEndpoint response carried no endpoint ID")
	}

	return map[string]string{RoleEndpoint: *resp.VpcEndpoint.VpcEndpointId}, nil
}

func (s *GatewayEndpointStep) Delete(ctx context.Context, st *state.Store) error {
	id, err := st.Get(RoleEndpoint)
	if err != nil {
		return nil
	}
	resp, err := s.clients.EC2.DeleteVpcEndpoints(ctx, &ec2.DeleteVpcEndpointsInput{
		VpcEndpointIds: []string{id},
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete VPC endpoint %s: %w", id, err)
	}
	// DeleteVpcEndpoints reports per-endpoint failures in the response body.
	for _, item := range resp.Unsuccessful {
		if item.Error != nil && item.Error.Code != nil {
			if *item.Error.Code == "InvalidVpcEndpoint.NotFound" {
				continue
			}
			return fmt.Errorf("failed to delete VPC endpoint %s: %s", id, awssdk.ToString(item.Error.Message))
		}
	}
	return nil
}
