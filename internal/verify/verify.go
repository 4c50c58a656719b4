// Package verify runs connectivity checks against a provisioned stack. The
// checks prove that the test instances reach S3 through the gateway endpoint
// rather than the public internet.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/ashokba6266/s3-vpc-endpoint/internal/aws"
	"github.com/ashokba6266/s3-vpc-endpoint/internal/config"
	"github.com/ashokba6266/s3-vpc-endpoint/internal/logging"
	"github.com/ashokba6266/s3-vpc-endpoint/internal/report"
	"github.com/ashokba6266/s3-vpc-endpoint/internal/state"
)

const (
	commandTimeout = 5 * time.Minute
	pollInterval   = 5 * time.Second
)

// Verifier runs the connectivity checks and records one outcome per check.
type Verifier struct {
	clients  *aws.Clients
	cfg      *config.Config
	reporter *report.Reporter

	poll time.Duration
}

func New(clients *aws.Clients, cfg *config.Config, reporter *report.Reporter) *Verifier {
	return &Verifier{clients: clients, cfg: cfg, reporter: reporter, poll: pollInterval}
}

// Run executes every check against the resources recorded in the store. It
// keeps going after a failed check so the report covers the whole stack; the
// returned error aggregates the failures.
func (v *Verifier) Run(ctx context.Context, st *state.Store) error {
	var failures []error

	check := func(name string, fn func(context.Context) (string, error)) {
		start := time.Now()
		detail, err := fn(ctx)
		outcome := report.Outcome{Step: name, Duration: time.Since(start)}
		if err != nil {
			outcome.Status = report.StatusFailed
			outcome.Detail = err.Error()
			failures = append(failures, fmt.Errorf("%s: %w", name, err))
			logging.Error("Check failed", "check", name, "error", err)
		} else {
			outcome.Status = report.StatusPassed
			outcome.Detail = detail
			logging.Info("Check passed", "check", name, "detail", detail)
		}
		v.reporter.Record(outcome)
	}

	check("endpoint-available", func(ctx context.Context) (string, error) {
		return v.checkEndpointAvailable(ctx, st)
	})
	check("route-table-association", func(ctx context.Context) (string, error) {
		return v.checkRouteTableAssociation(ctx, st)
	})

	bucket, err := st.Get(aws.RoleBucket)
	if err != nil {
		return errors.Join(append(failures, err)...)
	}
	for _, subnet := range v.cfg.Subnets {
		subnet := subnet
		check("s3-roundtrip-"+subnet.Name, func(ctx context.Context) (string, error) {
			instanceID, err := st.Get(aws.InstanceRoleFor(subnet.Name))
			if err != nil {
				return "", err
			}
			return v.checkRoundTrip(ctx, instanceID, bucket)
		})
	}

	return errors.Join(failures...)
}

// checkEndpointAvailable confirms the gateway endpoint still exists and is in
// the available state.
func (v *Verifier) checkEndpointAvailable(ctx context.Context, st *state.Store) (string, error) {
	id, err := st.Get(aws.RoleEndpoint)
	if err != nil {
		return "", err
	}
	resp, err := v.clients.EC2.DescribeVpcEndpoints(ctx, &ec2.DescribeVpcEndpointsInput{
		VpcEndpointIds: []string{id},
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe endpoint %s: %w", id, err)
	}
	if len(resp.VpcEndpoints) == 0 {
		return "", fmt.Errorf("endpoint %s not found", id)
	}
	ep := resp.VpcEndpoints[0]
	if ep.State != ec2types.StateAvailable {
		return "", fmt.Errorf("endpoint %s is %s, want available", id, ep.State)
	}
	return id, nil
}

// checkRouteTableAssociation confirms the endpoint is wired to the private
// route table, which is the piece that actually routes S3 traffic through it.
func (v *Verifier) checkRouteTableAssociation(ctx context.Context, st *state.Store) (string, error) {
	endpointID, err := st.Get(aws.RoleEndpoint)
	if err != nil {
		return "", err
	}
	rtID, err := st.Get(aws.RoleRouteTable)
	if err != nil {
		return "", err
	}
	resp, err := v.clients.EC2.DescribeVpcEndpoints(ctx, &ec2.DescribeVpcEndpointsInput{
		VpcEndpointIds: []string{endpointID},
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe endpoint %s: %w", endpointID, err)
	}
	if len(resp.VpcEndpoints) == 0 {
		return "", fmt.Errorf("endpoint %s not found", endpointID)
	}
	for _, id := range resp.VpcEndpoints[0].RouteTableIds {
		if id == rtID {
			return rtID, nil
		}
	}
	return "", fmt.Errorf("endpoint %s is not associated with route table %s", endpointID, rtID)
}

// checkRoundTrip writes an object to the bucket from inside the instance and
// reads it back, all over the endpoint. The command runs through SSM so the
// instances need no inbound access at all.
func (v *Verifier) checkRoundTrip(ctx context.Context, instanceID, bucket string) (string, error) {
	key := fmt.Sprintf("checks/%s.txt", instanceID)
	script := strings.Join([]string{
		"set -e",
		fmt.Sprintf("echo \"connectivity check from %s at $(date -u)\" > /tmp/s3vpce-check.txt", instanceID),
		fmt.Sprintf("aws s3 cp /tmp/s3vpce-check.txt s3://%s/%s --region %s", bucket, key, v.cfg.Region),
		fmt.Sprintf("aws s3 cp s3://%s/%s /tmp/s3vpce-readback.txt --region %s", bucket, key, v.cfg.Region),
		"cmp /tmp/s3vpce-check.txt /tmp/s3vpce-readback.txt",
	}, "\n")

	resp, err := v.clients.SSM.SendCommand(ctx, &ssm.SendCommandInput{
		InstanceIds:  []string{instanceID},
		DocumentName: awssdk.String("AWS-RunShellScript"),
		Parameters:   map[string][]string{"commands": {script}},
		Comment:      awssdk.String("s3vpce connectivity check"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to send command to %s: %w", instanceID, err)
	}
	if resp.Command == nil || resp.Command.CommandId == nil {
		return "", fmt.Errorf("SendCommand response for %s carried no command ID", instanceID)
	}

	return v.waitForCommand(ctx, *resp.Command.CommandId, instanceID, fmt.Sprintf("s3://%s/%s", bucket, key))
}

// waitForCommand polls the invocation until it reaches a terminal status.
func (v *Verifier) waitForCommand(ctx context.Context, commandID, instanceID, objectURL string) (string, error) {
	deadline := time.Now().Add(commandTimeout)
	for {
		if time.Now().After(deadline) {
			return "", fmt.Errorf("command %s on %s did not finish within %s", commandID, instanceID, commandTimeout)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(v.poll):
		}

		resp, err := v.clients.SSM.GetCommandInvocation(ctx, &ssm.GetCommandInvocationInput{
			CommandId:  awssdk.String(commandID),
			InstanceId: awssdk.String(instanceID),
		})
		if err != nil {
			// The invocation is not visible immediately after SendCommand.
			var notFound *ssmtypes.InvocationDoesNotExist
			if errors.As(err, &notFound) {
				continue
			}
			return "", fmt.Errorf("failed to get invocation %s on %s: %w", commandID, instanceID, err)
		}

		switch resp.Status {
		case ssmtypes.CommandInvocationStatusSuccess:
			return "wrote and read " + objectURL, nil
		case ssmtypes.CommandInvocationStatusFailed,
			ssmtypes.CommandInvocationStatusCancelled,
			ssmtypes.CommandInvocationStatusTimedOut:
			detail := ""
			if resp.StandardErrorContent != nil {
				detail = strings.TrimSpace(*resp.StandardErrorContent)
			}
			return "", fmt.Errorf("command %s on %s ended %s: %s", commandID, instanceID, resp.Status, detail)
		}
	}
}
