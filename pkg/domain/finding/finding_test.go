package finding_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/finding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSample(t *testing.T) {
	t.Run("strips control characters", func(t *testing.T) {
		got := finding.SanitizeSample("abc\x00\x1b[31mdef\r\n")
		assert.Equal(t, "abc[31mdef", got)
	})

	t.Run("caps length", func(t *testing.T) {
		got := finding.SanitizeSample(strings.Repeat("a", 500))
		assert.Len(t, got, finding.MaxSampleLength)
		assert.True(t, strings.HasSuffix(got, "..."))
	})
}

func TestSeverityOrderingAndJSON(t *testing.T) {
	assert.True(t, finding.SeverityCritical.AtLeast(finding.SeverityHigh))
	assert.Equal(t, finding.SeverityMedium, finding.SeverityHigh.Lower())
	assert.Equal(t, finding.SeverityNone, finding.SeverityNone.Lower())
	assert.Equal(t, finding.SeverityHigh, finding.SeverityCritical.Cap(finding.SeverityHigh))

	raw, err := json.Marshal(finding.SeverityHigh)
	require.NoError(t, err)
	assert.Equal(t, `"HIGH"`, string(raw))

	var parsed finding.Severity
	require.NoError(t, json.Unmarshal([]byte(`"critical"`), &parsed))
	assert.Equal(t, finding.SeverityCritical, parsed)

	_, err = finding.ParseSeverity("severe")
	assert.Error(t, err)
}

func TestAttributeDoesNotShareMetrics(t *testing.T) {
	original := finding.New(finding.KindVolumetricAnomaly, "", finding.SeverityHigh,
		finding.WithMetrics(map[string]float64{"score": 6}))
	attributed := original.Attribute("10.0.0.1")
	attributed.Evidence.Metrics["score"] = 99

	assert.Equal(t, "", original.SourceID)
	assert.Equal(t, 6.0, original.Evidence.Metrics["score"])
	assert.Equal(t, original.ID, attributed.ID)
}
