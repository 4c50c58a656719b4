package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"

	"github.com/ashokba6266/s3-vpc-endpoint/internal/config"
	"github.com/ashokba6266/s3-vpc-endpoint/internal/state"
)

// State roles produced by the identity steps.
const (
	RoleInstanceRole    = "instance-role"
	RoleInstanceProfile = "instance-profile"
)

const ec2TrustPolicy = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Principal": {"Service": "ec2.amazonaws.com"},
      "Action": "sts:AssumeRole"
    }
  ]
}`

// ssmCorePolicyARN allows the test instances to register with Systems
// Manager, which is how the connectivity checks reach them.
const ssmCorePolicyARN = "arn:aws:iam::aws:policy/AmazonSSMManagedInstanceCore"

const s3AccessPolicyName = "s3-endpoint-test-access"

// InstanceRoleStep provisions the IAM role the test instances assume.
type InstanceRoleStep struct {
	clients *Clients
	cfg     *config.Config
}

func NewInstanceRoleStep(clients *Clients, cfg *config.Config) *InstanceRoleStep {
	return &InstanceRoleStep{clients: clients, cfg: cfg}
}

func (s *InstanceRoleStep) Name() string        { return "instance-role" }
func (s *InstanceRoleStep) DependsOn() []string { return nil }
func (s *InstanceRoleStep) Produces() []string  { return []string{RoleInstanceRole} }

func (s *InstanceRoleStep) roleName() string {
	return s.cfg.ResourceName("instance-role")
}

func (s *InstanceRoleStep) s3AccessPolicy() string {
	return fmt.Sprintf(`{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Action": ["s3:GetObject", "s3:PutObject", "s3:ListBucket"],
      "Resource": ["arn:aws:s3:::%[1]s-*", "arn:aws:s3:::%[1]s-*/*"]
    }
  ]
}`, s.cfg.NamePrefix)
}

func (s *InstanceRoleStep) Exists(ctx context.Context, st *state.Store) (bool, error) {
	if !st.Has(RoleInstanceRole) {
		return false, nil
	}
	_, err := s.clients.IAM.GetRole(ctx, &iam.GetRoleInput{RoleName: awssdk.String(s.roleName())})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get role %s: %w", s.roleName(), err)
	}
	return true, nil
}

func (s *InstanceRoleStep) Create(ctx context.Context, _ *state.Store) (map[string]string, error) {
	name := s.roleName()
	_, err := s.clients.IAM.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 awssdk.String(name),
		AssumeRolePolicyDocument: awssdk.String(ec2TrustPolicy),
	})
	if err != nil && !isAlreadyExists(err) {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	_, err = s.clients.IAM.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
		RoleName:       awssdk.String(name),
		PolicyName:     awssdk.String(s3AccessPolicyName),
		PolicyDocument: awssdk.String(s.s3AccessPolicy()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach S3 access policy: %w", err)
	}

	_, err = s.clients.IAM.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		RoleName:  awssdk.String(name),
		PolicyArn: awssdk.String(ssmCorePolicyARN),
	})
	if err != nil && !isAlreadyExists(err) {
		return nil, fmt.Errorf("failed to attach SSM core policy: %w", err)
	}

	return map[string]string{RoleInstanceRole: name}, nil
}

func (s *InstanceRoleStep) Delete(ctx context.Context, st *state.Store) error {
	name, err := st.Get(RoleInstanceRole)
	if err != nil {
		return nil
	}

	_, err = s.clients.IAM.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
		RoleName:  awssdk.String(name),
		PolicyArn: awssdk.String(ssmCorePolicyARN),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to detach SSM core policy: %w", err)
	}

	_, err = s.clients.IAM.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
		RoleName:   awssdk.String(name),
		PolicyName: awssdk.String(s3AccessPolicyName),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete inline policy: %w", err)
	}

	if _, err := s.clients.IAM.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: awssdk.String(name)}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete role %s: %w", name, err)
	}
	return nil
}

// InstanceProfileStep wraps the role in the instance profile EC2 requires.
type InstanceProfileStep struct {
	clients *Clients
	cfg     *config.Config
}

func NewInstanceProfileStep(clients *Clients, cfg *config.Config) *InstanceProfileStep {
	return &InstanceProfileStep{clients: clients, cfg: cfg}
}

func (s *InstanceProfileStep) Name() string        { return "instance-profile" }
func (s *InstanceProfileStep) DependsOn() []string { return []string{RoleInstanceRole} }
func (s *InstanceProfileStep) Produces() []string  { return []string{RoleInstanceProfile} }

func (s *InstanceProfileStep) profileName() string {
	return s.cfg.ResourceName("instance-profile")
}

func (s *InstanceProfileStep) Exists(ctx context.Context, st *state.Store) (bool, error) {
	if !st.Has(RoleInstanceProfile) {
		return false, nil
	}
	_, err := s.clients.IAM.GetInstanceProfile(ctx, &iam.GetInstanceProfileInput{
		InstanceProfileName: awssdk.String(s.profileName()),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get instance profile %s: %w", s.profileName(), err)
	}
	return true, nil
}

func (s *InstanceProfileStep) Create(ctx context.Context, st *state.Store) (map[string]string, error) {
	roleName, err := st.Get(RoleInstanceRole)
	if err != nil {
		return nil, err
	}

	name := s.profileName()
	_, err = s.clients.IAM.CreateInstanceProfile(ctx, &iam.CreateInstanceProfileInput{
		InstanceProfileName: awssdk.String(name),
	})
	if err != nil && !isAlreadyExists(err) {
		return nil, fmt.Errorf("failed to create instance profile: %w", err)
	}

	_, err = s.clients.IAM.AddRoleToInstanceProfile(ctx, &iam.AddRoleToInstanceProfileInput{
		InstanceProfileName: awssdk.String(name),
		RoleName:            awssdk.String(roleName),
	})
	if err != nil && !isAlreadyExists(err) {
		return nil, fmt.Errorf("failed to add role to instance profile: %w", err)
	}

	return map[string]string{RoleInstanceProfile: name}, nil
}

func (s *InstanceProfileStep) Delete(ctx context.Context, st *state.Store) error {
	name, err := st.Get(RoleInstanceProfile)
	if err != nil {
		return nil
	}

	if roleName, err := st.Get(RoleInstanceRole); err == nil {
		_, err := s.clients.IAM.RemoveRoleFromInstanceProfile(ctx, &iam.RemoveRoleFromInstanceProfileInput{
			InstanceProfileName: awssdk.String(name),
			RoleName:            awssdk.String(roleName),
		})
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to remove role from instance profile: %w", err)
		}
	}

	_, err = s.clients.IAM.DeleteInstanceProfile(ctx, &iam.DeleteInstanceProfileInput{
		InstanceProfileName: awssdk.String(name),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete instance profile %s: %w", name, err)
	}
	return nil
}
