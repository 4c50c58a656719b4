package aws

import (
	"context"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/ashokba6266/s3-vpc-endpoint/internal/config"
	"github.com/ashokba6266/s3-vpc-endpoint/internal/state"
)

// amiParameter is the SSM public parameter holding the latest Amazon Linux
// 2023 image for the region.
const amiParameter = "/aws/service/ami-amazon-linux-latest/al2023-ami-kernel-default-x86_64"

const instanceWaitTimeout = 5 * time.Minute

// InstanceRoleFor returns the state role for the test instance in a subnet.
func InstanceRoleFor(subnetName string) string {
	return "test-instance-" + subnetName
}

// InstanceStep provisions one test instance in a private subnet. The
// instance carries the SSM-enabled profile so the connectivity checks can
// execute commands on it without a public IP.
type InstanceStep struct {
	clients *Clients
	cfg     *config.Config
	subnet  config.Subnet
}

func NewInstanceStep(clients *Clients, cfg *config.Config, subnet config.Subnet) *InstanceStep {
	return &InstanceStep{clients: clients, cfg: cfg, subnet: subnet}
}

func (s *InstanceStep) Name() string { return "test-instance-" + s.subnet.Name }

func (s *InstanceStep) DependsOn() []string {
	return []string{SubnetRole(s.subnet.Name), RoleSecurityGroup, RoleInstanceProfile}
}

func (s *InstanceStep) Produces() []string {
	return []string{InstanceRoleFor(s.subnet.Name)}
}

func (s *InstanceStep) Exists(ctx context.Context, st *state.Store) (bool, error) {
	role := InstanceRoleFor(s.subnet.Name)
	if !st.Has(role) {
		return false, nil
	}
	id, _ := st.Get(role)
	resp, err := s.clients.EC2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{id},
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to describe instance %s: %w", id, err)
	}
	for _, res := range resp.Reservations {
		for _, inst := range res.Instances {
			if inst.State == nil {
				continue
			}
			switch inst.State.Name {
			case types.InstanceStateNameTerminated, types.InstanceStateNameShuttingDown:
				// Gone for our purposes.
			default:
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *InstanceStep) Create(ctx context.Context, st *state.Store) (map[string]string, error) {
	subnetID, err := st.Get(SubnetRole(s.subnet.Name))
	if err != nil {
		return nil, err
	}
	sgID, err := st.Get(RoleSecurityGroup)
	if err != nil {
		return nil, err
	}
	profileName, err := st.Get(RoleInstanceProfile)
	if err != nil {
		return nil, err
	}

	ami, err := s.resolveAMI(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.clients.EC2.RunInstances(ctx, &ec2.RunInstancesInput{
		ImageId:            awssdk.String(ami),
		InstanceType:       types.InstanceType(s.cfg.InstanceType),
		MinCount:           awssdk.Int32(1),
		MaxCount:           awssdk.Int32(1),
		SubnetId:           awssdk.String(subnetID),
		SecurityGroupIds:   []string{sgID},
		IamInstanceProfile: &types.IamInstanceProfileSpecification{Name: awssdk.String(profileName)},
		TagSpecifications: tagSpec(types.ResourceTypeInstance,
			s.clients.resourceTags(s.cfg, s.cfg.ResourceName("test-"+s.subnet.Name))),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run instance in subnet %s: %w", subnetID, err)
	}
	if len(resp.Instances) == 0 || resp.Instances[0].InstanceId == nil {
		return nil, fmt.Errorf("RunInstances response carried no instance ID")
	}
	instanceID := *resp.Instances[0].InstanceId

	waiter := ec2.NewInstanceRunningWaiter(s.clients.EC2)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	}, instanceWaitTimeout); err != nil {
		return nil, fmt.Errorf("instance %s did not reach running state: %w", instanceID, err)
	}

	return map[string]string{InstanceRoleFor(s.subnet.Name): instanceID}, nil
}

func (s *InstanceStep) Delete(ctx context.Context, st *state.Store) error {
	role := InstanceRoleFor(s.subnet.Name)
	id, err := st.Get(role)
	if err != nil {
		return nil
	}

	if _, err := s.clients.EC2.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{id},
	}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to terminate instance %s: %w", id, err)
	}

	// The subnet cannot be deleted while the instance is still shutting
	// down, so wait for full termination here.
	waiter := ec2.NewInstanceTerminatedWaiter(s.clients.EC2)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{id},
	}, instanceWaitTimeout); err != nil {
		return fmt.Errorf("instance %s did not reach terminated state: %w", id, err)
	}
	return nil
}

func (s *InstanceStep) resolveAMI(ctx context.Context) (string, error) {
	if s.cfg.AMI != "" {
		return s.cfg.AMI, nil
	}
	resp, err := s.clients.SSM.GetParameter(ctx, &ssm.GetParameterInput{
		Name: awssdk.String(amiParameter),
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve AMI from SSM parameter %s: %w", amiParameter, err)
	}
	if resp.Parameter == nil || resp.Parameter.Value == nil {
		return "", fmt.Errorf("SSM parameter %s carried no value", amiParameter)
	}
	return *resp.Parameter.Value, nil
}
