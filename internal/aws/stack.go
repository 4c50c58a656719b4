package aws

import (
	"github.com/ashokba6266/s3-vpc-endpoint/internal/config"
	"github.com/ashokba6266/s3-vpc-endpoint/internal/sequencer"
)

// NetworkSteps returns the network foundation: VPC, subnets, route table and
// security group.
func NetworkSteps(clients *Clients, cfg *config.Config) []sequencer.Step {
	steps := []sequencer.Step{NewVPCStep(clients, cfg)}
	for _, subnet := range cfg.Subnets {
		steps = append(steps, NewSubnetStep(clients, cfg, subnet))
	}
	steps = append(steps,
		NewRouteTableStep(clients, cfg),
		NewSecurityGroupStep(clients, cfg),
	)
	return steps
}

// EndpointSteps returns the gateway endpoint plus the bucket it gates.
func EndpointSteps(clients *Clients, cfg *config.Config) []sequencer.Step {
	return []sequencer.Step{
		NewGatewayEndpointStep(clients, cfg),
		NewBucketStep(clients, cfg),
		NewBucketPolicyStep(clients, cfg),
	}
}

// ComputeSteps returns the instance role, profile and one test instance per
// configured subnet.
func ComputeSteps(clients *Clients, cfg *config.Config) []sequencer.Step {
	steps := []sequencer.Step{
		NewInstanceRoleStep(clients, cfg),
		NewInstanceProfileStep(clients, cfg),
	}
	for _, subnet := range cfg.Subnets {
		steps = append(steps, NewInstanceStep(clients, cfg, subnet))
	}
	return steps
}

// AllSteps returns every step in provisioning order. Teardown walks the same
// list in reverse.
func AllSteps(clients *Clients, cfg *config.Config) []sequencer.Step {
	var steps []sequencer.Step
	steps = append(steps, NetworkSteps(clients, cfg)...)
	steps = append(steps, EndpointSteps(clients, cfg)...)
	steps = append(steps, ComputeSteps(clients, cfg)...)
	return steps
}
