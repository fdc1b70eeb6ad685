package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/nimbusfs/pkg/output"
	"github.com/3leaps/nimbusfs/pkg/provider"
)

// resetFlags puts every flag of c and its subcommands back to its default,
// since cobra keeps parsed values on the package-level command tree.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCLI executes the root command with args and returns what it wrote to
// stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)

	resetFlags(rootCmd)
	appConfig = nil

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	rootCmd.SetArgs(nil)
	resetFlags(rootCmd)
	return out.String(), err
}

// withClient routes every provider lookup to client for the test.
func withClient(t *testing.T, client provider.Client) {
	t.Helper()
	orig := newClient
	newClient = func(context.Context, *ObjectURI) (provider.Client, error) { return client, nil }
	t.Cleanup(func() { newClient = orig })
}

type decoded struct {
	output.Record
	entry     output.EntryRecord
	errRec    output.ErrorRecord
	summary   output.SummaryRecord
	preflight output.PreflightRecord
}

func parseRecords(t *testing.T, out string) []decoded {
	t.Helper()
	var recs []decoded
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var d decoded
		require.NoError(t, json.Unmarshal(line, &d.Record))
		switch d.Type {
		case output.TypeEntry:
			require.NoError(t, json.Unmarshal(d.Data, &d.entry))
		case output.TypeError:
			require.NoError(t, json.Unmarshal(d.Data, &d.errRec))
		case output.TypeSummary:
			require.NoError(t, json.Unmarshal(d.Data, &d.summary))
		case output.TypePreflight:
			require.NoError(t, json.Unmarshal(d.Data, &d.preflight))
		}
		recs = append(recs, d)
	}
	require.NoError(t, sc.Err())
	return recs
}

func entryKeys(recs []decoded) []string {
	var keys []string
	for _, r := range recs {
		if r.Type == output.TypeEntry {
			keys = append(keys, r.entry.Key)
		}
	}
	return keys
}

func lastSummary(t *testing.T, recs []decoded) output.SummaryRecord {
	t.Helper()
	require.NotEmpty(t, recs)
	last := recs[len(recs)-1]
	require.Equal(t, output.TypeSummary, last.Type)
	return last.summary
}
