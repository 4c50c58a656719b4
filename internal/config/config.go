// Package config loads the s3vpce.yaml configuration file with environment
// variable overrides.
package config

import (
	"fmt"
	"net"
	"os"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"

	"github.com/ashokba6266/s3-vpc-endpoint/internal/state"
)

// DefaultPath is where the configuration file is looked up when no --config
// flag is given.
const DefaultPath = "s3vpce.yaml"

// Subnet describes one private subnet to provision.
type Subnet struct {
	Name             string `yaml:"name"`
	CIDR             string `yaml:"cidr"`
	AvailabilityZone string `yaml:"availabilityZone"`
}

// Config is the full tool configuration. YAML values can be overridden
// through S3VPCE_* environment variables.
type Config struct {
	Region     string `yaml:"region" env:"S3VPCE_REGION"`
	NamePrefix string `yaml:"namePrefix" env:"S3VPCE_NAME_PREFIX"`

	VpcCIDR string   `yaml:"vpcCidr" env:"S3VPCE_VPC_CIDR"`
	Subnets []Subnet `yaml:"subnets"`

	InstanceType string `yaml:"instanceType" env:"S3VPCE_INSTANCE_TYPE"`
	// AMI to launch. When empty, the latest Amazon Linux 2023 image is
	// resolved from the SSM public parameter store.
	AMI string `yaml:"ami" env:"S3VPCE_AMI"`

	// BucketName overrides the generated validation bucket name.
	BucketName string `yaml:"bucketName" env:"S3VPCE_BUCKET_NAME"`

	Tags map[string]string `yaml:"tags"`

	StatePath  string `yaml:"statePath" env:"S3VPCE_STATE_PATH"`
	ReportPath string `yaml:"reportPath" env:"S3VPCE_REPORT_PATH"`

	// Backend selects where state lives: "local" (default) or "s3".
	Backend struct {
		Type string                `yaml:"type" env:"S3VPCE_BACKEND"`
		S3   state.S3BackendConfig `yaml:"s3"`
	} `yaml:"backend"`
}

// Load reads the configuration file at path, applies environment overrides,
// fills defaults and validates. A missing file is not an error; defaults and
// environment variables alone are enough to run.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.NamePrefix == "" {
		c.NamePrefix = "s3vpce"
	}
	if c.VpcCIDR == "" {
		c.VpcCIDR = "10.0.0.0/16"
	}
	if len(c.Subnets) == 0 {
		c.Subnets = []Subnet{
			{Name: "a", CIDR: "10.0.1.0/24", AvailabilityZone: c.Region + "a"},
			{Name: "b", CIDR: "10.0.2.0/24", AvailabilityZone: c.Region + "b"},
		}
	}
	if c.InstanceType == "" {
		c.InstanceType = "t3.micro"
	}
	if c.StatePath == "" {
		c.StatePath = ".s3vpce/state.json"
	}
	if c.ReportPath == "" {
		c.ReportPath = ".s3vpce/report.json"
	}
	if c.Backend.Type == "" {
		c.Backend.Type = "local"
	}
}

// Validate checks the configuration for obvious mistakes before any AWS
// call is made.
func (c *Config) Validate() error {
	if _, _, err := net.ParseCIDR(c.VpcCIDR); err != nil {
		return fmt.Errorf("invalid vpcCidr %q: %w", c.VpcCIDR, err)
	}

	seen := make(map[string]bool)
	for i, sn := range c.Subnets {
		if sn.Name == "" {
			return fmt.Errorf("subnet %d has no name", i)
		}
		if seen[sn.Name] {
			return fmt.Errorf("duplicate subnet name %q", sn.Name)
		}
		seen[sn.Name] = true
		if _, _, err := net.ParseCIDR(sn.CIDR); err != nil {
			return fmt.Errorf("subnet %q: invalid cidr %q: %w", sn.Name, sn.CIDR, err)
		}
	}

	switch c.Backend.Type {
	case "local", "s3":
	default:
		return fmt.Errorf("unknown backend type %q", c.Backend.Type)
	}
	if c.Backend.Type == "s3" && c.Backend.S3.Bucket == "" {
		return fmt.Errorf("s3 backend requires backend.s3.bucket")
	}

	return nil
}

// ResourceName builds a prefixed name for a provisioned resource.
func (c *Config) ResourceName(suffix string) string {
	return c.NamePrefix + "-" + suffix
}
