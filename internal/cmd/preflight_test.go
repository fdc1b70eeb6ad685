package cmd

import (
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/nimbusfs/pkg/output"
	"github.com/3leaps/nimbusfs/pkg/preflight"
	"github.com/3leaps/nimbusfs/pkg/provider/providertest"
)

func TestPreflight_PlanOnly_WritesRecord(t *testing.T) {
	client := providertest.New("bucket")
	withClient(t, client)

	out, err := runCLI(t, "preflight", "s3://bucket/data/**/*.parquet", "--mode", "plan-only")
	require.NoError(t, err)

	assert.Contains(t, out, output.TypePreflight)
	assert.Contains(t, out, `"mode":"plan-only"`)
	assert.Zero(t, client.RemoteCalls())
}

func TestPreflight_ReadSafe(t *testing.T) {
	client := providertest.New("bucket")
	client.SeedKeys("data/a.parquet")
	withClient(t, client)

	out, err := runCLI(t, "preflight", "s3://bucket/data/")
	require.NoError(t, err)

	recs := parseRecords(t, out)
	require.Len(t, recs, 1)
	rec := recs[0].preflight
	assert.Equal(t, string(preflight.ModeReadSafe), rec.Mode)
	require.Len(t, rec.Results, 4)
	for _, r := range rec.Results {
		assert.True(t, r.Allowed, r.Capability)
	}
	assert.Zero(t, client.Count(providertest.OpCreateUpload))
}

func TestPreflight_WriteProbe(t *testing.T) {
	client := providertest.New("bucket")
	withClient(t, client)

	out, err := runCLI(t, "preflight", "s3://bucket/", "--mode", "write-probe", "--probe-strategy", "put-delete")
	require.NoError(t, err)

	rec := parseRecords(t, out)[0].preflight
	require.Len(t, rec.Results, 5)
	assert.Equal(t, preflight.CapObjectWrite, rec.Results[4].Capability)
	assert.True(t, rec.Results[4].Allowed)
	assert.Equal(t, 1, client.Count(providertest.OpPut))
	assert.Equal(t, 1, client.Count(providertest.OpDelete))
	assert.Empty(t, client.Keys())
}

func TestPreflight_Denied(t *testing.T) {
	client := providertest.New("bucket")
	client.Fail(providertest.OpList, providertest.Forbidden(providertest.OpList, "data/"))
	withClient(t, client)

	out, err := runCLI(t, "preflight", "s3://bucket/data/")
	require.Error(t, err)
	assert.Equal(t, foundry.ExitExternalServiceUnavailable, exitCode(err))

	rec := parseRecords(t, out)[0].preflight
	var denied []string
	for _, r := range rec.Results {
		if !r.Allowed {
			denied = append(denied, r.Capability)
			assert.Equal(t, output.ErrCodeAccessDenied, r.ErrorCode)
		}
	}
	assert.Equal(t, []string{preflight.CapObjectList}, denied)
}

func TestPreflight_InvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "mode", args: []string{"preflight", "s3://bucket/", "--mode", "yolo"}},
		{name: "strategy", args: []string{"preflight", "s3://bucket/", "--probe-strategy", "teleport"}},
		{name: "uri", args: []string{"preflight", "gcs://bucket/"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, foundry.ExitInvalidArgument, exitCode(err))
		})
	}
}
