package signature_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/NeuralTrust/TrustSentinel/pkg/detection/signature"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/finding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLibrary(t *testing.T) {
	lib, err := signature.Default()
	require.NoError(t, err)

	destructive, ok := lib.Family("sql_destructive")
	require.True(t, ok)
	assert.Equal(t, finding.SeverityCritical, destructive.Severity)

	union, ok := lib.Family("sql_union")
	require.True(t, ok)
	assert.Equal(t, finding.SeverityHigh, union.Severity)
	assert.Equal(t, "union_based", union.Technique)

	tautology, _ := lib.Family("sql_tautology")
	assert.Equal(t, finding.SeverityMedium, tautology.Severity)

	comment, _ := lib.Family("sql_comment")
	assert.Equal(t, finding.SeverityLow, comment.Severity)

	assert.Equal(t, 64, lib.Heuristics.LengthLimits["username"])
	assert.True(t, lib.Whitelisted("Please SELECT AN OPTION below"))
}

func TestParseRejectsIncompleteLibraries(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "no families", data: "version: 1\nfamilies: []\n"},
		{name: "missing severity", data: `
version: 1
families:
  - name: sql_union
    kind: SQL_INJECTION
    rules:
      - id: r1
        pattern: 'union'
`},
		{name: "unknown severity", data: `
version: 1
families:
  - name: sql_union
    kind: SQL_INJECTION
    severity: SEVERE
    rules:
      - id: r1
        pattern: 'union'
`},
		{name: "bad regex", data: `
version: 1
families:
  - name: sql_union
    kind: SQL_INJECTION
    severity: HIGH
    rules:
      - id: r1
        pattern: '(?<=x)union'
`},
		{name: "unsupported kind", data: `
version: 1
families:
  - name: traffic
    kind: VOLUMETRIC_ANOMALY
    severity: HIGH
    rules:
      - id: r1
        pattern: 'x'
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := signature.Parse([]byte(tt.data))
			require.Error(t, err)
			assert.True(t, domain.IsConfigurationError(err), "got %v", err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := signature.Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.True(t, domain.IsConfigurationError(err))
	})

	t.Run("custom file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "signatures.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
version: 2
whitelist: ["hello world"]
families:
  - name: script_injection
    kind: SCRIPT_INJECTION
    severity: HIGH
    technique: script_injection
    rules:
      - id: script-tag
        pattern: '(?i)<script'
`), 0o600))

		lib, err := signature.Load(path)
		require.NoError(t, err)
		assert.Equal(t, 2, lib.Version)
		assert.Len(t, lib.Families, 1)
		assert.Equal(t, 5, lib.Heuristics.SpecialRunLength)
	})

	t.Run("empty path uses embedded library", func(t *testing.T) {
		lib, err := signature.Load("")
		require.NoError(t, err)
		assert.NotEmpty(t, lib.Families)
	})
}
