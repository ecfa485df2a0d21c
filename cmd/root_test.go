package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prism/internal/asset"
	"github.com/sells-group/prism/internal/report"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"serve", "migrate", "ingest", "optimize", "compare", "high-risk", "export", "loads"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "prism", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestIngestCommand_Flags(t *testing.T) {
	for _, name := range []string{"kind", "region", "sheet", "dry-run", "max-rejects"} {
		assert.NotNil(t, ingestCmd.Flags().Lookup(name), "ingest should have --%s flag", name)
	}
	assert.Equal(t, "auto", ingestCmd.Flags().Lookup("kind").DefValue)
}

func TestQueryCommand_Flags(t *testing.T) {
	assert.Equal(t, "true", optimizeCmd.Flags().Lookup("include-roads").DefValue)
	assert.Equal(t, "false", optimizeCmd.Flags().Lookup("include-medium").DefValue)
	assert.NotNil(t, optimizeCmd.Flags().Lookup("prioritize-critical"))
	assert.Nil(t, highRiskCmd.Flags().Lookup("budget"))
	assert.Equal(t, "all", highRiskCmd.Flags().Lookup("class").DefValue)
	assert.Equal(t, "json", exportCmd.Flags().Lookup("format").DefValue)
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want asset.Kind
	}{
		{"", ""},
		{"auto", ""},
		{"bridge", asset.KindBridge},
		{"bridges", asset.KindBridge},
		{"road", asset.KindRoad},
		{"roads", asset.KindRoad},
	}
	for _, tt := range tests {
		got, err := parseKind(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := parseKind("tunnel")
	assert.Error(t, err)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

const bridgeCSV = `Bridge ID,Bridge Name,Province,Condition Rating,BCI,Year Built,Highway
ON-001,Don Valley,ON,Critical,20,1960,Highway 401
ON-002,Humber,Ontario,Poor,,1975,
ON-003,Credit,Ontario,Good,85,2015,
ON-004,Broken,Ontario,Unknown,,1990,
`

func TestIngestThenQuery(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	t.Setenv("PRISM_STORE_DATABASE_URL", filepath.Join(dir, "prism.db"))
	t.Setenv("PRISM_LOG_LEVEL", "error")
	t.Setenv("PRISM_OPTIMIZER_YEAR", "2025")

	src := filepath.Join(dir, "bridges.csv")
	require.NoError(t, os.WriteFile(src, []byte(bridgeCSV), 0o644))

	out, err := execute(t, "ingest", src)
	require.NoError(t, err)
	assert.Contains(t, out, "3 bridge record(s), 1 rejected")
	assert.Contains(t, out, `row 5: field "condition"`)
	assert.Contains(t, out, "stored 3 bridge record(s) for Ontario")

	out, err = execute(t, "optimize", "--region", "Ontario", "--budget", "1000000000")
	require.NoError(t, err)
	var opt report.Optimization
	require.NoError(t, json.Unmarshal([]byte(out), &opt))
	assert.Equal(t, 2, opt.Summary.BridgesSelected)

	out, err = execute(t, "high-risk", "--region", "on", "--class", "bridges")
	require.NoError(t, err)
	var hr report.HighRisk
	require.NoError(t, json.Unmarshal([]byte(out), &hr))
	assert.Equal(t, 2, hr.TotalCount)

	csvPath := filepath.Join(dir, "export.csv")
	_, err = execute(t, "export", "--region", "Ontario", "--budget", "1000000000", "--format", "csv", "--out", csvPath)
	require.NoError(t, err)
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), strings.Join(report.CSVHeader, ",")))

	out, err = execute(t, "loads", "--region", "ON")
	require.NoError(t, err)
	assert.Contains(t, out, "Ontario")
	assert.Contains(t, out, src)

	_, err = execute(t, "optimize", "--region", "Atlantis", "--budget", "1", "--out", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid region")
}
