//go:build cloudintegration

package preflight_test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/nimbusfs/pkg/preflight"
	"github.com/3leaps/nimbusfs/test/cloudtest"
)

func TestRun_WriteProbe_MultipartAbort(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()

	bucket := cloudtest.CreateBucket(t, ctx)
	p := cloudtest.NewProvider(t, ctx, bucket)

	rec, err := preflight.Run(ctx, p, preflight.Spec{
		Mode:          preflight.ModeWriteProbe,
		ProbeStrategy: preflight.ProbeMultipartAbort,
	})
	require.NoError(t, err)
	require.Len(t, rec.Results, 5)
	for _, r := range rec.Results {
		assert.True(t, r.Allowed, r.Capability)
	}
}

func TestRun_WriteProbe_PutDelete_CleansUp(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()

	bucket := cloudtest.CreateBucket(t, ctx)
	p := cloudtest.NewProvider(t, ctx, bucket)

	_, err := preflight.Run(ctx, p, preflight.Spec{
		Mode:          preflight.ModeWriteProbe,
		ProbeStrategy: preflight.ProbePutDelete,
	})
	require.NoError(t, err)

	out, err := cloudtest.ClientT(t).ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(preflight.DefaultProbePrefix),
	})
	require.NoError(t, err)
	assert.Empty(t, out.Contents)
}

func TestRun_MissingBucket(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()

	p := cloudtest.NewProvider(t, ctx, "nimbusfs-missing-bucket")
	rec, err := preflight.Run(ctx, p, preflight.Spec{Mode: preflight.ModeReadSafe})
	require.Error(t, err)
	assert.False(t, rec.Results[0].Allowed)
	assert.Equal(t, "NOT_FOUND", rec.Results[0].ErrorCode)
}
