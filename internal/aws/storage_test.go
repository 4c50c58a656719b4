package aws

import (
	"context"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	S3API

	createBucket func(*s3.CreateBucketInput) (*s3.CreateBucketOutput, error)
	deleteBucket func(*s3.DeleteBucketInput) (*s3.DeleteBucketOutput, error)
	listObjects  func(*s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error)
	deleteObjs   func(*s3.DeleteObjectsInput) (*s3.DeleteObjectsOutput, error)
	putPolicy    func(*s3.PutBucketPolicyInput) (*s3.PutBucketPolicyOutput, error)
	deletePolicy func(*s3.DeleteBucketPolicyInput) (*s3.DeleteBucketPolicyOutput, error)
}

func (f *fakeS3) CreateBucket(_ context.Context, p *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	return f.createBucket(p)
}
func (f *fakeS3) DeleteBucket(_ context.Context, p *s3.DeleteBucketInput, _ ...func(*s3.Options)) (*s3.DeleteBucketOutput, error) {
	return f.deleteBucket(p)
}
func (f *fakeS3) ListObjectsV2(_ context.Context, p *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	return f.listObjects(p)
}
func (f *fakeS3) DeleteObjects(_ context.Context, p *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	return f.deleteObjs(p)
}
func (f *fakeS3) PutBucketPolicy(_ context.Context, p *s3.PutBucketPolicyInput, _ ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error) {
	return f.putPolicy(p)
}
func (f *fakeS3) DeleteBucketPolicy(_ context.Context, p *s3.DeleteBucketPolicyInput, _ ...func(*s3.Options)) (*s3.DeleteBucketPolicyOutput, error) {
	return f.deletePolicy(p)
}

type fakeSTS struct {
	account string
	calls   int
}

func (f *fakeSTS) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	f.calls++
	return &sts.GetCallerIdentityOutput{Account: awssdk.String(f.account)}, nil
}

func TestBucketStep_CreateGeneratesAccountScopedName(t *testing.T) {
	var created string
	fake := &fakeS3{
		createBucket: func(p *s3.CreateBucketInput) (*s3.CreateBucketOutput, error) {
			created = *p.Bucket
			require.NotNil(t, p.CreateBucketConfiguration)
			assert.Equal(t, s3types.BucketLocationConstraint("eu-west-1"), p.CreateBucketConfiguration.LocationConstraint)
			return &s3.CreateBucketOutput{}, nil
		},
	}

	cfg := networkConfig()
	step := NewBucketStep(&Clients{S3: fake, STS: &fakeSTS{account: "111122223333"}}, cfg)

	produced, err := step.Create(context.Background(), newStore(t))
	require.NoError(t, err)
	assert.Equal(t, "s3vpce-endpoint-test-111122223333", created)
	assert.Equal(t, map[string]string{RoleBucket: created}, produced)
}

func TestBucketStep_CreateUsEast1OmitsLocationConstraint(t *testing.T) {
	fake := &fakeS3{
		createBucket: func(p *s3.CreateBucketInput) (*s3.CreateBucketOutput, error) {
			assert.Nil(t, p.CreateBucketConfiguration)
			return &s3.CreateBucketOutput{}, nil
		},
	}

	cfg := networkConfig()
	cfg.Region = "us-east-1"
	step := NewBucketStep(&Clients{S3: fake, STS: &fakeSTS{account: "111122223333"}}, cfg)

	_, err := step.Create(context.Background(), newStore(t))
	require.NoError(t, err)
}

func TestBucketStep_ConfiguredNameSkipsSTS(t *testing.T) {
	fake := &fakeS3{
		createBucket: func(p *s3.CreateBucketInput) (*s3.CreateBucketOutput, error) {
			assert.Equal(t, "my-own-bucket", *p.Bucket)
			return &s3.CreateBucketOutput{}, nil
		},
	}
	stsFake := &fakeSTS{account: "111122223333"}

	cfg := networkConfig()
	cfg.BucketName = "my-own-bucket"
	step := NewBucketStep(&Clients{S3: fake, STS: stsFake}, cfg)

	_, err := step.Create(context.Background(), newStore(t))
	require.NoError(t, err)
	assert.Equal(t, 0, stsFake.calls)
}

func TestBucketStep_DeleteEmptiesBucketFirst(t *testing.T) {
	var deleted [][]s3types.ObjectIdentifier
	var bucketDeleted bool
	page := 0
	fake := &fakeS3{
		listObjects: func(p *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
			page++
			if page == 1 {
				return &s3.ListObjectsV2Output{
					Contents:              []s3types.Object{{Key: awssdk.String("checks/i-aaa.txt")}},
					IsTruncated:           awssdk.Bool(true),
					NextContinuationToken: awssdk.String("next"),
				}, nil
			}
			return &s3.ListObjectsV2Output{
				Contents:    []s3types.Object{{Key: awssdk.String("checks/i-bbb.txt")}},
				IsTruncated: awssdk.Bool(false),
			}, nil
		},
		deleteObjs: func(p *s3.DeleteObjectsInput) (*s3.DeleteObjectsOutput, error) {
			deleted = append(deleted, p.Delete.Objects)
			return &s3.DeleteObjectsOutput{}, nil
		},
		deleteBucket: func(p *s3.DeleteBucketInput) (*s3.DeleteBucketOutput, error) {
			bucketDeleted = true
			assert.Equal(t, "s3vpce-endpoint-test-111122223333", *p.Bucket)
			return &s3.DeleteBucketOutput{}, nil
		},
	}

	st := newStore(t)
	st.Put(RoleBucket, "s3vpce-endpoint-test-111122223333")

	step := NewBucketStep(&Clients{S3: fake}, networkConfig())
	require.NoError(t, step.Delete(context.Background(), st))
	require.Len(t, deleted, 2)
	assert.True(t, bucketDeleted)
}

func TestBucketStep_DeleteToleratesMissingBucket(t *testing.T) {
	fake := &fakeS3{
		listObjects: func(*s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
			return nil, apiError("NoSuchBucket")
		},
	}

	st := newStore(t)
	st.Put(RoleBucket, "gone-already")

	step := NewBucketStep(&Clients{S3: fake}, networkConfig())
	assert.NoError(t, step.Delete(context.Background(), st))
}

func TestBucketPolicyStep_CreateRestrictsToEndpoint(t *testing.T) {
	var policy string
	fake := &fakeS3{
		putPolicy: func(p *s3.PutBucketPolicyInput) (*s3.PutBucketPolicyOutput, error) {
			assert.Equal(t, "test-bucket-name", *p.Bucket)
			policy = *p.Policy
			return &s3.PutBucketPolicyOutput{}, nil
		},
	}

	st := newStore(t)
	st.Put(RoleBucket, "test-bucket-name")
	st.Put(RoleEndpoint, "vpce-123")

	step := NewBucketPolicyStep(&Clients{S3: fake}, networkConfig())
	produced, err := step.Create(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{RoleBucketPolicy: "test-bucket-name"}, produced)

	assert.Contains(t, policy, `"aws:sourceVpce": "vpce-123"`)
	assert.Contains(t, policy, "arn:aws:s3:::test-bucket-name/*")
	assert.Contains(t, policy, `"Effect": "Deny"`)
	// Management operations stay reachable from outside the endpoint.
	assert.NotContains(t, policy, `"s3:*"`)
}

func TestBucketPolicyStep_CreateFailsWithoutEndpoint(t *testing.T) {
	st := newStore(t)
	st.Put(RoleBucket, "test-bucket-name")

	step := NewBucketPolicyStep(&Clients{S3: &fakeS3{}}, networkConfig())
	_, err := step.Create(context.Background(), st)
	require.Error(t, err)
}
