package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/nimbusfs/pkg/errclass"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []Record {
	t.Helper()
	var out []Record
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var r Record
		require.NoError(t, json.Unmarshal([]byte(line), &r))
		out = append(out, r)
	}
	return out
}

func TestJSONLWriter_WriteEntry(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-1", "s3")
	fixed := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	err := w.WriteEntry(context.Background(), &EntryRecord{
		Key:          "data/file.parquet",
		Size:         1024,
		ETag:         "abc",
		LastModified: fixed,
	})
	require.NoError(t, err)

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, TypeEntry, recs[0].Type)
	assert.Equal(t, "job-1", recs[0].JobID)
	assert.Equal(t, "s3", recs[0].Provider)
	assert.Equal(t, fixed, recs[0].TS)

	var e EntryRecord
	require.NoError(t, json.Unmarshal(recs[0].Data, &e))
	assert.Equal(t, "data/file.parquet", e.Key)
	assert.Equal(t, int64(1024), e.Size)
	assert.False(t, e.IsDir)
}

func TestEntryRecord_DirectoryOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(&EntryRecord{Key: "dir", IsDir: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"dir","size":0,"is_dir":true}`, string(data))
}

func TestErrorRecordFrom(t *testing.T) {
	t.Run("classified", func(t *testing.T) {
		err := &errclass.Error{
			Kind:       errclass.AccessDenied,
			Op:         "deleteObject",
			Path:       "k",
			StatusCode: 403,
			Code:       "AccessDenied",
			RequestID:  "req-1",
		}
		rec := ErrorRecordFrom("k", err)
		assert.Equal(t, ErrCodeAccessDenied, rec.Code)
		assert.Equal(t, "deleteObject", rec.Op)
		assert.Equal(t, 403, rec.StatusCode)
		assert.Equal(t, "req-1", rec.RequestID)
		assert.Equal(t, "k", rec.Key)
	})

	t.Run("wrapped classified", func(t *testing.T) {
		err := errors.Join(errclass.New(errclass.NotFound, "getFileStatus", "x", "gone"), context.Canceled)
		assert.Equal(t, ErrCodeNotFound, ErrorRecordFrom("x", err).Code)
	})

	t.Run("plain", func(t *testing.T) {
		rec := ErrorRecordFrom("", errors.New("boom"))
		assert.Equal(t, ErrCodeInternal, rec.Code)
		assert.Equal(t, "boom", rec.Message)
	})

	t.Run("every kind has a code", func(t *testing.T) {
		for k := errclass.Generic; k <= errclass.InvariantViolation; k++ {
			assert.NotEmpty(t, kindCodes[k], k.String())
		}
	})
}

func TestJSONLWriter_WriteSummary_FillsHumanDuration(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-1", "file")

	require.NoError(t, w.WriteSummary(context.Background(), &SummaryRecord{
		Command:  "rm",
		Deleted:  3,
		Duration: 1500 * time.Millisecond,
	}))

	recs := decodeLines(t, &buf)
	var s SummaryRecord
	require.NoError(t, json.Unmarshal(recs[0].Data, &s))
	assert.Equal(t, TypeSummary, recs[0].Type)
	assert.Equal(t, "1.5s", s.DurationHuman)
	assert.Equal(t, int64(3), s.Deleted)
}

func TestJSONLWriter_WritePreflight(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-1", "s3")

	require.NoError(t, w.WritePreflight(context.Background(), &PreflightRecord{
		Mode: "read-safe",
		Results: []PreflightCheckResult{
			{Capability: "bucket.head", Allowed: true, Method: "HeadBucket"},
			{Capability: "multipart.list", Allowed: false, ErrorCode: ErrCodeAccessDenied},
		},
	}))

	recs := decodeLines(t, &buf)
	assert.Equal(t, TypePreflight, recs[0].Type)
	var p PreflightRecord
	require.NoError(t, json.Unmarshal(recs[0].Data, &p))
	require.Len(t, p.Results, 2)
	assert.False(t, p.Results[1].Allowed)
}

func TestJSONLWriter_Close(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-1", "s3")
	require.NoError(t, w.Close())

	err := w.WriteEntry(context.Background(), &EntryRecord{Key: "k"})
	assert.ErrorIs(t, err, ErrWriterClosed)
	assert.Zero(t, buf.Len())
}

func TestJSONLWriter_ContextCancelled(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-1", "s3")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.WriteEntry(ctx, &EntryRecord{Key: "k"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len())
}

func TestJSONLWriter_ConcurrentWritesStayOnOneLine(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-1", "s3")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.WriteEntry(context.Background(), &EntryRecord{Key: strings.Repeat("k", 64)})
		}()
	}
	wg.Wait()

	assert.Len(t, decodeLines(t, &buf), 50)
}

type shortWriter struct {
	buf bytes.Buffer
	n   int
}

func (s *shortWriter) Write(p []byte) (int, error) {
	if len(p) > s.n {
		p = p[:s.n]
	}
	return s.buf.Write(p)
}

type zeroWriter struct{}

func (zeroWriter) Write([]byte) (int, error) { return 0, nil }

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestJSONLWriter_WriteFailures(t *testing.T) {
	t.Run("short writes are completed", func(t *testing.T) {
		sw := &shortWriter{n: 7}
		w := NewJSONLWriter(sw, "job-1", "s3")
		require.NoError(t, w.WriteEntry(context.Background(), &EntryRecord{Key: "a/b/c"}))
		assert.True(t, strings.HasSuffix(sw.buf.String(), "\n"))
		assert.True(t, json.Valid(bytes.TrimSpace(sw.buf.Bytes())))
	})

	t.Run("zero write", func(t *testing.T) {
		w := NewJSONLWriter(zeroWriter{}, "job-1", "s3")
		err := w.WriteEntry(context.Background(), &EntryRecord{Key: "k"})
		assert.ErrorIs(t, err, io.ErrShortWrite)
	})

	t.Run("writer error", func(t *testing.T) {
		w := NewJSONLWriter(failWriter{}, "job-1", "s3")
		err := w.WriteEntry(context.Background(), &EntryRecord{Key: "k"})
		var we *WriteError
		require.ErrorAs(t, err, &we)
		assert.Equal(t, "write", we.Op)
		assert.ErrorIs(t, err, io.ErrClosedPipe)
	})
}

func TestNewJobID(t *testing.T) {
	id := NewJobID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, NewJobID())
}
