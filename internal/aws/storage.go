package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/ashokba6266/s3-vpc-endpoint/internal/config"
	"github.com/ashokba6266/s3-vpc-endpoint/internal/state"
)

// State roles produced by the storage steps.
const (
	RoleBucket       = "test-bucket"
	RoleBucketPolicy = "bucket-policy"
)

// BucketStep provisions the validation bucket the test instances read and
// write through the gateway endpoint.
type BucketStep struct {
	clients *Clients
	cfg     *config.Config
}

func NewBucketStep(clients *Clients, cfg *config.Config) *BucketStep {
	return &BucketStep{clients: clients, cfg: cfg}
}

func (s *BucketStep) Name() string        { return "test-bucket" }
func (s *BucketStep) DependsOn() []string { return nil }
func (s *BucketStep) Produces() []string  { return []string{RoleBucket} }

// bucketName generates an account-scoped name unless the config overrides
// it. Bucket names are global, so the account ID keeps runs from colliding.
func (s *BucketStep) bucketName(ctx context.Context) (string, error) {
	if s.cfg.BucketName != "" {
		return s.cfg.BucketName, nil
	}
	resp, err := s.clients.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to resolve account ID: %w", err)
	}
	if resp.Account == nil {
		return "", fmt.Errorf("GetCallerIdentity response carried no account ID")
	}
	return fmt.Sprintf("%s-endpoint-test-%s", s.cfg.NamePrefix, *resp.Account), nil
}

func (s *BucketStep) Exists(ctx context.Context, st *state.Store) (bool, error) {
	if !st.Has(RoleBucket) {
		return false, nil
	}
	name, _ := st.Get(RoleBucket)
	_, err := s.clients.S3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: awssdk.String(name)})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check bucket %s: %w", name, err)
	}
	return true, nil
}

func (s *BucketStep) Create(ctx context.Context, _ *state.Store) (map[string]string, error) {
	name, err := s.bucketName(ctx)
	if err != nil {
		return nil, err
	}

	input := &s3.CreateBucketInput{Bucket: awssdk.String(name)}
	// us-east-1 rejects an explicit location constraint.
	if s.cfg.Region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(s.cfg.Region),
		}
	}

	if _, err := s.clients.S3.CreateBucket(ctx, input); err != nil && !isAlreadyExists(err) {
		return nil, fmt.Errorf("failed to create bucket %s: %w", name, err)
	}

	return map[string]string{RoleBucket: name}, nil
}

func (s *BucketStep) Delete(ctx context.Context, st *state.Store) error {
	name, err := st.Get(RoleBucket)
	if err != nil {
		return nil
	}

	if err := s.emptyBucket(ctx, name); err != nil {
		return err
	}

	if _, err := s.clients.S3.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: awssdk.String(name)}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete bucket %s: %w", name, err)
	}
	return nil
}

// emptyBucket removes all objects; a bucket must be empty before deletion.
func (s *BucketStep) emptyBucket(ctx context.Context, name string) error {
	var token *string
	for {
		list, err := s.clients.S3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            awssdk.String(name),
			ContinuationToken: token,
		})
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return fmt.Errorf("failed to list objects in %s: %w", name, err)
		}

		if len(list.Contents) > 0 {
			objects := make([]s3types.ObjectIdentifier, 0, len(list.Contents))
			for _, obj := range list.Contents {
				objects = append(objects, s3types.ObjectIdentifier{Key: obj.Key})
			}
			_, err := s.clients.S3.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: awssdk.String(name),
				Delete: &s3types.Delete{Objects: objects, Quiet: awssdk.Bool(true)},
			})
			if err != nil {
				return fmt.Errorf("failed to delete objects in %s: %w", name, err)
			}
		}

		if list.IsTruncated == nil || !*list.IsTruncated {
			return nil
		}
		token = list.NextContinuationToken
	}
}

// BucketPolicyStep restricts object access on the validation bucket to
// traffic arriving through the gateway endpoint. That is what proves the
// instances' S3 path is private: requests from anywhere else are denied.
type BucketPolicyStep struct {
	clients *Clients
	cfg     *config.Config
}

func NewBucketPolicyStep(clients *Clients, cfg *config.Config) *BucketPolicyStep {
	return &BucketPolicyStep{clients: clients, cfg: cfg}
}

func (s *BucketPolicyStep) Name() string        { return "bucket-policy" }
func (s *BucketPolicyStep) DependsOn() []string { return []string{RoleBucket, RoleEndpoint} }
func (s *BucketPolicyStep) Produces() []string  { return []string{RoleBucketPolicy} }

// policyDocument denies object reads and writes unless they arrive through
// the endpoint. Bucket management operations are deliberately left alone so
// the operator can still inspect and tear down from outside the VPC.
func policyDocument(bucket, endpointID string) string {
	return fmt.Sprintf(`{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Sid": "DenyObjectAccessOutsideEndpoint",
      "Effect": "Deny",
      "Principal": "*",
      "Action": ["s3:GetObject", "s3:PutObject"],
      "Resource": "arn:aws:s3:::%s/*",
      "Condition": {"StringNotEquals": {"aws:sourceVpce": "%s"}}
    }
  ]
}`, bucket, endpointID)
}

func (s *BucketPolicyStep) Exists(ctx context.Context, st *state.Store) (bool, error) {
	if !st.Has(RoleBucketPolicy) {
		return false, nil
	}
	bucket, err := st.Get(RoleBucket)
	if err != nil {
		return false, nil
	}
	_, err = s.clients.S3.GetBucketPolicy(ctx, &s3.GetBucketPolicyInput{Bucket: awssdk.String(bucket)})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get bucket policy for %s: %w", bucket, err)
	}
	return true, nil
}

func (s *BucketPolicyStep) Create(ctx context.Context, st *state.Store) (map[string]string, error) {
	bucket, err := st.Get(RoleBucket)
	if err != nil {
		return nil, err
	}
	endpointID, err := st.Get(RoleEndpoint)
	if err != nil {
		return nil, err
	}

	_, err = s.clients.S3.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: awssdk.String(bucket),
		Policy: awssdk.String(policyDocument(bucket, endpointID)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to put bucket policy on %s: %w", bucket, err)
	}

	return map[string]string{RoleBucketPolicy: bucket}, nil
}

func (s *BucketPolicyStep) Delete(ctx context.Context, st *state.Store) error {
	bucket, err := st.Get(RoleBucketPolicy)
	if err != nil {
		return nil
	}
	if _, err := s.clients.S3.DeleteBucketPolicy(ctx, &s3.DeleteBucketPolicyInput{Bucket: awssdk.String(bucket)}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete bucket policy on %s: %w", bucket, err)
	}
	return nil
}
