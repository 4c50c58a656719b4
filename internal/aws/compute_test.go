package aws

import (
	"context"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	SSMAPI
	getParameter func(*ssm.GetParameterInput) (*ssm.GetParameterOutput, error)
}

func (f *fakeSSM) GetParameter(_ context.Context, p *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return f.getParameter(p)
}

func instancesInState(id string, name types.InstanceStateName) *ec2.DescribeInstancesOutput {
	return &ec2.DescribeInstancesOutput{
		Reservations: []types.Reservation{{
			Instances: []types.Instance{{
				InstanceId: awssdk.String(id),
				State:      &types.InstanceState{Name: name},
			}},
		}},
	}
}

func TestInstanceStep_CreateResolvesAMIFromSSM(t *testing.T) {
	ec2Fake := &fakeEC2{
		runInstances: func(p *ec2.RunInstancesInput) (*ec2.RunInstancesOutput, error) {
			assert.Equal(t, "ami-resolved", *p.ImageId)
			assert.Equal(t, "subnet-aaa", *p.SubnetId)
			assert.Equal(t, []string{"sg-123"}, p.SecurityGroupIds)
			require.NotNil(t, p.IamInstanceProfile)
			assert.Equal(t, "s3vpce-instance-profile", *p.IamInstanceProfile.Name)
			return &ec2.RunInstancesOutput{
				Instances: []types.Instance{{InstanceId: awssdk.String("i-aaa")}},
			}, nil
		},
		describeInstances: func(*ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
			return instancesInState("i-aaa", types.InstanceStateNameRunning), nil
		},
	}
	ssmFake := &fakeSSM{
		getParameter: func(p *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			assert.Equal(t, amiParameter, *p.Name)
			return &ssm.GetParameterOutput{
				Parameter: &ssmtypes.Parameter{Value: awssdk.String("ami-resolved")},
			}, nil
		},
	}

	cfg := networkConfig()
	st := newStore(t)
	st.Put(SubnetRole("a"), "subnet-aaa")
	st.Put(RoleSecurityGroup, "sg-123")
	st.Put(RoleInstanceProfile, "s3vpce-instance-profile")

	step := NewInstanceStep(&Clients{EC2: ec2Fake, SSM: ssmFake}, cfg, cfg.Subnets[0])
	produced, err := step.Create(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{InstanceRoleFor("a"): "i-aaa"}, produced)
}

func TestInstanceStep_CreateUsesConfiguredAMI(t *testing.T) {
	ec2Fake := &fakeEC2{
		runInstances: func(p *ec2.RunInstancesInput) (*ec2.RunInstancesOutput, error) {
			assert.Equal(t, "ami-pinned", *p.ImageId)
			return &ec2.RunInstancesOutput{
				Instances: []types.Instance{{InstanceId: awssdk.String("i-bbb")}},
			}, nil
		},
		describeInstances: func(*ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
			return instancesInState("i-bbb", types.InstanceStateNameRunning), nil
		},
	}

	cfg := networkConfig()
	cfg.AMI = "ami-pinned"
	st := newStore(t)
	st.Put(SubnetRole("b"), "subnet-bbb")
	st.Put(RoleSecurityGroup, "sg-123")
	st.Put(RoleInstanceProfile, "s3vpce-instance-profile")

	step := NewInstanceStep(&Clients{EC2: ec2Fake}, cfg, cfg.Subnets[1])
	_, err := step.Create(context.Background(), st)
	require.NoError(t, err)
}

func TestInstanceStep_ExistsTreatsTerminatedAsGone(t *testing.T) {
	ec2Fake := &fakeEC2{
		describeInstances: func(*ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
			return instancesInState("i-aaa", types.InstanceStateNameTerminated), nil
		},
	}

	cfg := networkConfig()
	st := newStore(t)
	st.Put(InstanceRoleFor("a"), "i-aaa")

	step := NewInstanceStep(&Clients{EC2: ec2Fake}, cfg, cfg.Subnets[0])
	exists, err := step.Exists(context.Background(), st)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInstanceStep_DeleteWaitsForTermination(t *testing.T) {
	terminated := false
	ec2Fake := &fakeEC2{
		terminateInstances: func(p *ec2.TerminateInstancesInput) (*ec2.TerminateInstancesOutput, error) {
			terminated = true
			assert.Equal(t, []string{"i-aaa"}, p.InstanceIds)
			return &ec2.TerminateInstancesOutput{}, nil
		},
		describeInstances: func(*ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
			return instancesInState("i-aaa", types.InstanceStateNameTerminated), nil
		},
	}

	cfg := networkConfig()
	st := newStore(t)
	st.Put(InstanceRoleFor("a"), "i-aaa")

	step := NewInstanceStep(&Clients{EC2: ec2Fake}, cfg, cfg.Subnets[0])
	require.NoError(t, step.Delete(context.Background(), st))
	assert.True(t, terminated)
}
