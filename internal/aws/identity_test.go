package aws

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIAM struct {
	IAMAPI
	calls []string

	createRole     func(*iam.CreateRoleInput) (*iam.CreateRoleOutput, error)
	putRolePolicy  func(*iam.PutRolePolicyInput) (*iam.PutRolePolicyOutput, error)
	attachPolicy   func(*iam.AttachRolePolicyInput) (*iam.AttachRolePolicyOutput, error)
	detachPolicy   func(*iam.DetachRolePolicyInput) (*iam.DetachRolePolicyOutput, error)
	deleteRolePol  func(*iam.DeleteRolePolicyInput) (*iam.DeleteRolePolicyOutput, error)
	deleteRole     func(*iam.DeleteRoleInput) (*iam.DeleteRoleOutput, error)
	removeFromProf func(*iam.RemoveRoleFromInstanceProfileInput) (*iam.RemoveRoleFromInstanceProfileOutput, error)
	deleteProfile  func(*iam.DeleteInstanceProfileInput) (*iam.DeleteInstanceProfileOutput, error)
	createProfile  func(*iam.CreateInstanceProfileInput) (*iam.CreateInstanceProfileOutput, error)
	addRoleToProf  func(*iam.AddRoleToInstanceProfileInput) (*iam.AddRoleToInstanceProfileOutput, error)
}

func (f *fakeIAM) CreateRole(_ context.Context, p *iam.CreateRoleInput, _ ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	f.calls = append(f.calls, "CreateRole")
	return f.createRole(p)
}
func (f *fakeIAM) PutRolePolicy(_ context.Context, p *iam.PutRolePolicyInput, _ ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error) {
	f.calls = append(f.calls, "PutRolePolicy")
	return f.putRolePolicy(p)
}
func (f *fakeIAM) AttachRolePolicy(_ context.Context, p *iam.AttachRolePolicyInput, _ ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error) {
	f.calls = append(f.calls, "AttachRolePolicy")
	return f.attachPolicy(p)
}
func (f *fakeIAM) DetachRolePolicy(_ context.Context, p *iam.DetachRolePolicyInput, _ ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error) {
	f.calls = append(f.calls, "DetachRolePolicy")
	return f.detachPolicy(p)
}
func (f *fakeIAM) DeleteRolePolicy(_ context.Context, p *iam.DeleteRolePolicyInput, _ ...func(*iam.Options)) (*iam.DeleteRolePolicyOutput, error) {
	f.calls = append(f.calls, "DeleteRolePolicy")
	return f.deleteRolePol(p)
}
func (f *fakeIAM) DeleteRole(_ context.Context, p *iam.DeleteRoleInput, _ ...func(*iam.Options)) (*iam.DeleteRoleOutput, error) {
	f.calls = append(f.calls, "DeleteRole")
	return f.deleteRole(p)
}
func (f *fakeIAM) RemoveRoleFromInstanceProfile(_ context.Context, p *iam.RemoveRoleFromInstanceProfileInput, _ ...func(*iam.Options)) (*iam.RemoveRoleFromInstanceProfileOutput, error) {
	f.calls = append(f.calls, "RemoveRoleFromInstanceProfile")
	return f.removeFromProf(p)
}
func (f *fakeIAM) DeleteInstanceProfile(_ context.Context, p *iam.DeleteInstanceProfileInput, _ ...func(*iam.Options)) (*iam.DeleteInstanceProfileOutput, error) {
	f.calls = append(f.calls, "DeleteInstanceProfile")
	return f.deleteProfile(p)
}
func (f *fakeIAM) CreateInstanceProfile(_ context.Context, p *iam.CreateInstanceProfileInput, _ ...func(*iam.Options)) (*iam.CreateInstanceProfileOutput, error) {
	f.calls = append(f.calls, "CreateInstanceProfile")
	return f.createProfile(p)
}
func (f *fakeIAM) AddRoleToInstanceProfile(_ context.Context, p *iam.AddRoleToInstanceProfileInput, _ ...func(*iam.Options)) (*iam.AddRoleToInstanceProfileOutput, error) {
	f.calls = append(f.calls, "AddRoleToInstanceProfile")
	return f.addRoleToProf(p)
}

func TestInstanceRoleStep_CreateAttachesPolicies(t *testing.T) {
	fake := &fakeIAM{
		createRole: func(p *iam.CreateRoleInput) (*iam.CreateRoleOutput, error) {
			assert.Equal(t, "s3vpce-instance-role", *p.RoleName)
			assert.Contains(t, *p.AssumeRolePolicyDocument, "ec2.amazonaws.com")
			return &iam.CreateRoleOutput{}, nil
		},
		putRolePolicy: func(p *iam.PutRolePolicyInput) (*iam.PutRolePolicyOutput, error) {
			assert.Contains(t, *p.PolicyDocument, "arn:aws:s3:::s3vpce-*")
			return &iam.PutRolePolicyOutput{}, nil
		},
		attachPolicy: func(p *iam.AttachRolePolicyInput) (*iam.AttachRolePolicyOutput, error) {
			assert.Equal(t, ssmCorePolicyARN, *p.PolicyArn)
			return &iam.AttachRolePolicyOutput{}, nil
		},
	}

	step := NewInstanceRoleStep(&Clients{IAM: fake}, networkConfig())
	produced, err := step.Create(context.Background(), newStore(t))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{RoleInstanceRole: "s3vpce-instance-role"}, produced)
	assert.Equal(t, []string{"CreateRole", "PutRolePolicy", "AttachRolePolicy"}, fake.calls)
}

func TestInstanceRoleStep_CreateToleratesExistingRole(t *testing.T) {
	fake := &fakeIAM{
		createRole: func(*iam.CreateRoleInput) (*iam.CreateRoleOutput, error) {
			return nil, apiError("EntityAlreadyExists")
		},
		putRolePolicy: func(*iam.PutRolePolicyInput) (*iam.PutRolePolicyOutput, error) {
			return &iam.PutRolePolicyOutput{}, nil
		},
		attachPolicy: func(*iam.AttachRolePolicyInput) (*iam.AttachRolePolicyOutput, error) {
			return &iam.AttachRolePolicyOutput{}, nil
		},
	}

	step := NewInstanceRoleStep(&Clients{IAM: fake}, networkConfig())
	_, err := step.Create(context.Background(), newStore(t))
	require.NoError(t, err)
}

func TestInstanceRoleStep_DeleteDetachesBeforeDeleting(t *testing.T) {
	fake := &fakeIAM{
		detachPolicy: func(*iam.DetachRolePolicyInput) (*iam.DetachRolePolicyOutput, error) {
			return &iam.DetachRolePolicyOutput{}, nil
		},
		deleteRolePol: func(*iam.DeleteRolePolicyInput) (*iam.DeleteRolePolicyOutput, error) {
			return &iam.DeleteRolePolicyOutput{}, nil
		},
		deleteRole: func(*iam.DeleteRoleInput) (*iam.DeleteRoleOutput, error) {
			return &iam.DeleteRoleOutput{}, nil
		},
	}

	st := newStore(t)
	st.Put(RoleInstanceRole, "s3vpce-instance-role")

	step := NewInstanceRoleStep(&Clients{IAM: fake}, networkConfig())
	require.NoError(t, step.Delete(context.Background(), st))
	assert.Equal(t, []string{"DetachRolePolicy", "DeleteRolePolicy", "DeleteRole"}, fake.calls)
}

func TestInstanceProfileStep_DeleteRemovesRoleFirst(t *testing.T) {
	fake := &fakeIAM{
		removeFromProf: func(*iam.RemoveRoleFromInstanceProfileInput) (*iam.RemoveRoleFromInstanceProfileOutput, error) {
			return &iam.RemoveRoleFromInstanceProfileOutput{}, nil
		},
		deleteProfile: func(*iam.DeleteInstanceProfileInput) (*iam.DeleteInstanceProfileOutput, error) {
			return &iam.DeleteInstanceProfileOutput{}, nil
		},
	}

	st := newStore(t)
	st.Put(RoleInstanceRole, "s3vpce-instance-role")
	st.Put(RoleInstanceProfile, "s3vpce-instance-profile")

	step := NewInstanceProfileStep(&Clients{IAM: fake}, networkConfig())
	require.NoError(t, step.Delete(context.Background(), st))
	assert.Equal(t, []string{"RemoveRoleFromInstanceProfile", "DeleteInstanceProfile"}, fake.calls)
}
