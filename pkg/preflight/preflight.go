// Package preflight checks what the current principal may do in a bucket
// before a command starts, and reports each check as a JSONL-ready result.
package preflight

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/3leaps/nimbusfs/pkg/errclass"
	"github.com/3leaps/nimbusfs/pkg/output"
	"github.com/3leaps/nimbusfs/pkg/provider"
)

// Mode defines how aggressive preflight checks are.
type Mode string

const (
	ModePlanOnly   Mode = "plan-only"
	ModeReadSafe   Mode = "read-safe"
	ModeWriteProbe Mode = "write-probe"
)

// ProbeStrategy selects how write access is probed.
type ProbeStrategy string

const (
	ProbeMultipartAbort ProbeStrategy = "multipart-abort"
	ProbePutDelete      ProbeStrategy = "put-delete"
)

// DefaultProbePrefix is where write probes leave (and remove) their keys.
const DefaultProbePrefix = "_nimbusfs/probe/"

// Capability names are stable strings used in JSONL output.
const (
	CapBucketHead    = "bucket.head"
	CapObjectList    = "object.list"
	CapObjectHead    = "object.head"
	CapMultipartList = "multipart.list"
	CapObjectWrite   = "object.write"
)

// Spec controls which checks run.
type Spec struct {
	Mode          Mode
	ProbeStrategy ProbeStrategy
	ProbePrefix   string

	// Prefix scopes the list and head checks.
	Prefix string
}

type check struct {
	capability string
	method     string
	run        func(ctx context.Context) error
}

// Run executes the checks for spec.Mode. Read checks run concurrently and
// every result is recorded; the returned error is the first failure in
// check order.
func Run(ctx context.Context, client provider.Client, spec Spec) (*output.PreflightRecord, error) {
	rec := &output.PreflightRecord{Mode: string(spec.Mode), Results: []output.PreflightCheckResult{}}
	if spec.Mode == ModePlanOnly {
		return rec, nil
	}

	checks := readChecks(client, spec.Prefix)
	results := make([]output.PreflightCheckResult, len(checks))
	errs := make([]error, len(checks))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range checks {
		g.Go(func() error {
			results[i], errs[i] = evaluate(gctx, c)
			return nil
		})
	}
	_ = g.Wait()

	rec.Results = append(rec.Results, results...)
	for _, err := range errs {
		if err != nil {
			return rec, err
		}
	}

	if spec.Mode != ModeWriteProbe {
		return rec, nil
	}
	res, err := evaluate(ctx, writeCheck(client, spec))
	rec.Results = append(rec.Results, res)
	return rec, err
}

func readChecks(client provider.Client, prefix string) []check {
	probeKey := joinPrefix(prefix, "_nimbusfs/preflight-"+uuid.NewString())
	return []check{
		{
			capability: CapBucketHead,
			method:     "HeadBucket",
			run:        client.HeadBucket,
		},
		{
			capability: CapObjectList,
			method:     fmt.Sprintf("List(prefix=%q,delimiter=\"/\",maxKeys=1)", prefix),
			run: func(ctx context.Context) error {
				_, err := client.List(ctx, provider.ListOptions{Prefix: prefix, Delimiter: "/", MaxKeys: 1})
				return err
			},
		},
		{
			capability: CapObjectHead,
			method:     "Head(random)",
			run: func(ctx context.Context) error {
				_, err := client.Head(ctx, probeKey)
				if provider.IsNotFound(err) {
					return nil
				}
				return err
			},
		},
		{
			capability: CapMultipartList,
			method:     "ListMultipartUploads(maxUploads=1)",
			run: func(ctx context.Context) error {
				_, err := client.ListMultipartUploads(ctx, provider.MultipartListOptions{Prefix: prefix, MaxUploads: 1})
				return err
			},
		},
	}
}

func writeCheck(client provider.Client, spec Spec) check {
	probePrefix := spec.ProbePrefix
	if probePrefix == "" {
		probePrefix = DefaultProbePrefix
	}
	key := joinPrefix(probePrefix, "write-"+uuid.NewString())

	if spec.ProbeStrategy == ProbePutDelete {
		return check{
			capability: CapObjectWrite,
			method:     "PutObject+DeleteObject",
			run: func(ctx context.Context) error {
				if err := client.PutObject(ctx, key, bytes.NewReader(nil), 0); err != nil {
					return err
				}
				return client.DeleteObject(ctx, key)
			},
		}
	}
	return check{
		capability: CapObjectWrite,
		method:     "CreateMultipartUpload+Abort",
		run: func(ctx context.Context) error {
			id, err := client.CreateMultipartUpload(ctx, key)
			if err != nil {
				return err
			}
			return client.AbortMultipartUpload(ctx, key, id)
		},
	}
}

func evaluate(ctx context.Context, c check) (output.PreflightCheckResult, error) {
	res := output.PreflightCheckResult{Capability: c.capability, Method: c.method, Allowed: true}
	err := c.run(ctx)
	if err == nil {
		return res, nil
	}
	err = errclass.Classify(c.method, c.capability, err)
	res.Allowed = false
	res.ErrorCode = output.ErrorRecordFrom("", err).Code
	res.Detail = err.Error()
	return res, err
}

func joinPrefix(prefix, suffix string) string {
	if prefix == "" || strings.HasSuffix(prefix, "/") {
		return prefix + suffix
	}
	return prefix + "/" + suffix
}
