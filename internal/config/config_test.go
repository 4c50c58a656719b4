package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, "s3vpce", cfg.NamePrefix)
	assert.Equal(t, "10.0.0.0/16", cfg.VpcCIDR)
	require.Len(t, cfg.Subnets, 2)
	assert.Equal(t, "us-east-1a", cfg.Subnets[0].AvailabilityZone)
	assert.Equal(t, "local", cfg.Backend.Type)
	assert.Equal(t, ".s3vpce/state.json", cfg.StatePath)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s3vpce.yaml")
	content := `
region: eu-west-1
namePrefix: demo
vpcCidr: 172.16.0.0/16
subnets:
  - name: private-1
    cidr: 172.16.10.0/24
    availabilityZone: eu-west-1a
instanceType: t3.small
tags:
  team: storage
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "demo", cfg.NamePrefix)
	require.Len(t, cfg.Subnets, 1)
	assert.Equal(t, "private-1", cfg.Subnets[0].Name)
	assert.Equal(t, "t3.small", cfg.InstanceType)
	assert.Equal(t, "storage", cfg.Tags["team"])
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("S3VPCE_REGION", "ap-southeast-2")
	t.Setenv("S3VPCE_NAME_PREFIX", "envtest")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "ap-southeast-2", cfg.Region)
	assert.Equal(t, "envtest", cfg.NamePrefix)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad vpc cidr",
			mutate:  func(c *Config) { c.VpcCIDR = "300.0.0.0/8" },
			wantErr: "invalid vpcCidr",
		},
		{
			name: "duplicate subnet name",
			mutate: func(c *Config) {
				c.Subnets = []Subnet{
					{Name: "a", CIDR: "10.0.1.0/24"},
					{Name: "a", CIDR: "10.0.2.0/24"},
				}
			},
			wantErr: "duplicate subnet name",
		},
		{
			name:    "bad subnet cidr",
			mutate:  func(c *Config) { c.Subnets = []Subnet{{Name: "a", CIDR: "nope"}} },
			wantErr: "invalid cidr",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Backend.Type = "gcs" },
			wantErr: "unknown backend type",
		},
		{
			name:    "s3 backend without bucket",
			mutate:  func(c *Config) { c.Backend.Type = "s3" },
			wantErr: "requires backend.s3.bucket",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.applyDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResourceName(t *testing.T) {
	cfg := &Config{NamePrefix: "demo"}
	assert.Equal(t, "demo-vpc", cfg.ResourceName("vpc"))
}
