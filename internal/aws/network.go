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

// State roles produced by the network steps.
const (
	RoleVPC           = "vpc"
	RoleRouteTable    = "route-table"
	RoleSecurityGroup = "security-group"
)

// SubnetRole returns the state role for a named subnet.
func SubnetRole(name string) string {
	return "subnet-" + name
}

func (c *Clients) resourceTags(cfg *config.Config, name string) []types.Tag {
	tags := []types.Tag{
		{Key: awssdk.String("Name"), Value: awssdk.String(name)},
		{Key: awssdk.String("ManagedBy"), Value: awssdk.String("s3vpce")},
	}
	for k, v := range cfg.Tags {
		tags = append(tags, types.Tag{Key: awssdk.String(k), Value: awssdk.String(v)})
	}
	return tags
}

func tagSpec(rt types.ResourceType, tags []types.Tag) []types.TagSpecification {
	return []types.TagSpecification{{ResourceType: rt, Tags: tags}}
}

// VPCStep provisions the VPC that hosts the endpoint and test instances.
type VPCStep struct {
	clients *Clients
	cfg     *config.Config
}

func NewVPCStep(clients *Clients, cfg *config.Config) *VPCStep {
	return &VPCStep{clients: clients, cfg: cfg}
}

func (s *VPCStep) Name() string        { return "vpc" }
func (s *VPCStep) DependsOn() []string { return nil }
func (s *VPCStep) Produces() []string  { return []string{RoleVPC} }

func (s *VPCStep) Exists(ctx context.Context, st *state.Store) (bool, error) {
	if !st.Has(RoleVPC) {
		return false, nil
	}
	id, _ := st.Get(RoleVPC)
	resp, err := s.clients.EC2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{id}})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to describe VPC %s: %w", id, err)
	}
	return len(resp.Vpcs) > 0, nil
}

func (s *VPCStep) Create(ctx context.Context, _ *state.Store) (map[string]string, error) {
	resp, err := s.clients.EC2.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock:         awssdk.String(s.cfg.VpcCIDR),
		TagSpecifications: tagSpec(types.ResourceTypeVpc, s.clients.resourceTags(s.cfg, s.cfg.ResourceName("vpc"))),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create VPC: %w", err)
	}
	if resp.Vpc == nil || resp.Vpc.VpcId == nil {
		return nil, fmt.Errorf("CreateVpc response carried no VPC ID")
	}
	vpcID := *resp.Vpc.VpcId

	// Private DNS names for the gateway endpoint require both attributes.
	for _, attr := range []*ec2.ModifyVpcAttributeInput{
		{VpcId: awssdk.String(vpcID), EnableDnsSupport: &types.AttributeBooleanValue{Value: awssdk.Bool(true)}},
		{VpcId: awssdk.String(vpcID), EnableDnsHostnames: &types.AttributeBooleanValue{Value: awssdk.Bool(true)}},
	} {
		if _, err := s.clients.EC2.ModifyVpcAttribute(ctx, attr); err != nil {
			return nil, fmt.Errorf("failed to enable DNS attributes on VPC %s: %w", vpcID, err)
		}
	}

	return map[string]string{RoleVPC: vpcID}, nil
}

func (s *VPCStep) Delete(ctx context.Context, st *state.Store) error {
	id, err := st.Get(RoleVPC)
	if err != nil {
		return nil
	}
	if _, err := s.clients.EC2.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: awssdk.String(id)}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete VPC %s: %w", id, err)
	}
	return nil
}

// SubnetStep provisions one private subnet inside the VPC.
type SubnetStep struct {
	clients *Clients
	cfg     *config.Config
	subnet  config.Subnet
}

func NewSubnetStep(clients *Clients, cfg *config.Config, subnet config.Subnet) *SubnetStep {
	return &SubnetStep{clients: clients, cfg: cfg, subnet: subnet}
}

func (s *SubnetStep) Name() string        { return "subnet-" + s.subnet.Name }
func (s *SubnetStep) DependsOn() []string { return []string{RoleVPC} }
func (s *SubnetStep) Produces() []string  { return []string{SubnetRole(s.subnet.Name)} }

func (s *SubnetStep) Exists(ctx context.Context, st *state.Store) (bool, error) {
	role := SubnetRole(s.subnet.Name)
	if !st.Has(role) {
		return false, nil
	}
	id, _ := st.Get(role)
	resp, err := s.clients.EC2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{SubnetIds: []string{id}})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to describe subnet %s: %w", id, err)
	}
	return len(resp.Subnets) > 0, nil
}

func (s *SubnetStep) Create(ctx context.Context, st *state.Store) (map[string]string, error) {
	vpcID, err := st.Get(RoleVPC)
	if err != nil {
		return nil, err
	}

	input := &ec2.CreateSubnetInput{
		VpcId:             awssdk.String(vpcID),
		CidrBlock:         awssdk.String(s.subnet.CIDR),
		TagSpecifications: tagSpec(types.ResourceTypeSubnet, s.clients.resourceTags(s.cfg, s.cfg.ResourceName("subnet-"+s.subnet.Name))),
	}
	if s.subnet.AvailabilityZone != "" {
		input.AvailabilityZone = awssdk.String(s.subnet.AvailabilityZone)
	}

	resp, err := s.clients.EC2.CreateSubnet(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create subnet %s: %w", s.subnet.Name, err)
	}
	if resp.Subnet == nil || resp.Subnet.SubnetId == nil {
		return nil, fmt.Errorf("CreateSubnet response carried no subnet ID")
	}

	return map[string]string{SubnetRole(s.subnet.Name): *resp.Subnet.SubnetId}, nil
}

func (s *SubnetStep) Delete(ctx context.Context, st *state.Store) error {
	role := SubnetRole(s.subnet.Name)
	id, err := st.Get(role)
	if err != nil {
		return nil
	}
	if _, err := s.clients.EC2.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: awssdk.String(id)}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete subnet %s: %w", id, err)
	}
	return nil
}

// RouteTableStep provisions the route table the gateway endpoint injects its
// prefix-list route into, and associates it with every subnet.
type RouteTableStep struct {
	clients *Clients
	cfg     *config.Config
}

func NewRouteTableStep(clients *Clients, cfg *config.Config) *RouteTableStep {
	return &RouteTableStep{clients: clients, cfg: cfg}
}

func (s *RouteTableStep) Name() string { return "route-table" }

func (s *RouteTableStep) DependsOn() []string {
	deps := []string{RoleVPC}
	for _, sn := range s.cfg.Subnets {
		deps = append(deps, SubnetRole(sn.Name))
	}
	return deps
}

func (s *RouteTableStep) Produces() []string { return []string{RoleRouteTable} }

func (s *RouteTableStep) Exists(ctx context.Context, st *state.Store) (bool, error) {
	if !st.Has(RoleRouteTable) {
		return false, nil
	}
	id, _ := st.Get(RoleRouteTable)
	resp, err := s.clients.EC2.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{RouteTableIds: []string{id}})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to describe route table %s: %w", id, err)
	}
	return len(resp.RouteTables) > 0, nil
}

func (s *RouteTableStep) Create(ctx context.Context, st *state.Store) (map[string]string, error) {
	vpcID, err := st.Get(RoleVPC)
	if err != nil {
		return nil, err
	}

	resp, err := s.clients.EC2.CreateRouteTable(ctx, &ec2.CreateRouteTableInput{
		VpcId:             awssdk.String(vpcID),
		TagSpecifications: tagSpec(types.ResourceTypeRouteTable, s.clients.resourceTags(s.cfg, s.cfg.ResourceName("private-rt"))),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create route table: %w", err)
	}
	if resp.RouteTable == nil || resp.RouteTable.RouteTableId == nil {
		return nil, fmt.Errorf("CreateRouteTable response carried no route table ID")
	}
	rtID := *resp.RouteTable.RouteTableId

	for _, sn := range s.cfg.Subnets {
		subnetID, err := st.Get(SubnetRole(sn.Name))
		if err != nil {
			return nil, err
		}
		_, err = s.clients.EC2.AssociateRouteTable(ctx, &ec2.AssociateRouteTableInput{
			RouteTableId: awssdk.String(rtID),
			SubnetId:     awssdk.String(subnetID),
		})
		if err != nil && !isAlreadyExists(err) {
			return nil, fmt.Errorf("failed to associate route table with subnet %s: %w", subnetID, err)
		}
	}

	return map[string]string{RoleRouteTable: rtID}, nil
}

func (s *RouteTableStep) Delete(ctx context.Context, st *state.Store) error {
	id, err := st.Get(RoleRouteTable)
	if err != nil {
		return nil
	}

	// Associations block deletion; drop the non-main ones first.
	resp, err := s.clients.EC2.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{RouteTableIds: []string{id}})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to describe route table %s: %w", id, err)
	}
	for _, rt := range resp.RouteTables {
		for _, assoc := range rt.Associations {
			if assoc.Main != nil && *assoc.Main {
				continue
			}
			if assoc.RouteTableAssociationId == nil {
				continue
			}
			_, err := s.clients.EC2.DisassociateRouteTable(ctx, &ec2.DisassociateRouteTableInput{
				AssociationId: assoc.RouteTableAssociationId,
			})
			if err != nil && !isNotFound(err) {
				return fmt.Errorf("failed to disassociate route table %s: %w", id, err)
			}
		}
	}

	if _, err := s.clients.EC2.DeleteRouteTable(ctx, &ec2.DeleteRouteTableInput{RouteTableId: awssdk.String(id)}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete route table %s: %w", id, err)
	}
	return nil
}

// SecurityGroupStep provisions the security group attached to the test
// instances. Only intra-VPC SSH is allowed in; egress is left at the AWS
// default so instance traffic can reach the gateway endpoint.
type SecurityGroupStep struct {
	clients *Clients
	cfg     *config.Config
}

func NewSecurityGroupStep(clients *Clients, cfg *config.Config) *SecurityGroupStep {
	return &SecurityGroupStep{clients: clients, cfg: cfg}
}

func (s *SecurityGroupStep) Name() string        { return "security-group" }
func (s *SecurityGroupStep) DependsOn() []string { return []string{RoleVPC} }
func (s *SecurityGroupStep) Produces() []string  { return []string{RoleSecurityGroup} }

func (s *SecurityGroupStep) Exists(ctx context.Context, st *state.Store) (bool, error) {
	if !st.Has(RoleSecurityGroup) {
		return false, nil
	}
	id, _ := st.Get(RoleSecurityGroup)
	resp, err := s.clients.EC2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{GroupIds: []string{id}})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to describe security group %s: %w", id, err)
	}
	return len(resp.SecurityGroups) > 0, nil
}

func (s *SecurityGroupStep) Create(ctx context.Context, st *state.Store) (map[string]string, error) {
	vpcID, err := st.Get(RoleVPC)
	if err != nil {
		return nil, err
	}

	name := s.cfg.ResourceName("test-sg")
	resp, err := s.clients.EC2.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:         awssdk.String(name),
		Description:       awssdk.String("test instances for S3 gateway endpoint validation"),
		VpcId:             awssdk.String(vpcID),
		TagSpecifications: tagSpec(types.ResourceTypeSecurityGroup, s.clients.resourceTags(s.cfg, name)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create security group: %w", err)
	}
	if resp.GroupId == nil {
		return nil, fmt.Errorf("CreateSecurityGroup response carried no group ID")
	}
	groupID := *resp.GroupId

	_, err = s.clients.EC2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: awssdk.String(groupID),
		IpPermissions: []types.IpPermission{
			{
				IpProtocol: awssdk.String("tcp"),
				FromPort:   awssdk.Int32(22),
				ToPort:     awssdk.Int32(22),
				IpRanges:   []types.IpRange{{CidrIp: awssdk.String(s.cfg.VpcCIDR)}},
			},
		},
	})
	if err != nil && !isAlreadyExists(err) {
		return nil, fmt.Errorf("failed to authorize SSH ingress: %w", err)
	}

	return map[string]string{RoleSecurityGroup: groupID}, nil
}

func (s *SecurityGroupStep) Delete(ctx context.Context, st *state.Store) error {
	id, err := st.Get(RoleSecurityGroup)
	if err != nil {
		return nil
	}
	if _, err := s.clients.EC2.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: awssdk.String(id)}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete security group %s: %w", id, err)
	}
	return nil
}
