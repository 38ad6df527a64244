package metrics

import (
	"bytes"
	"strings"
	"testing"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMessage(t *testing.T) {
	logger := logrus.New()

	entry := logrus.NewEntry(logger)
	entry.Message = "escrow settled"
	assert.Equal(t, "escrow settled", formatMessage(entry))

	entry = logger.WithFields(logrus.Fields{
		"escrow": "addr",
		"seed":   7,
	})
	entry.Message = "escrow settled"
	assert.Equal(t, `message="escrow settled", error=<nil>, data={"escrow":"addr","seed":7}`, formatMessage(entry))

	entry = logger.WithError(errors.New("insufficient funds")).WithField("escrow", "addr")
	entry.Message = "take transaction failed"
	assert.Equal(t, `message="take transaction failed", error="insufficient funds", data={"escrow":"addr"}`, formatMessage(entry))
}

func TestNewRelicLogger(t *testing.T) {
	nr, err := newrelic.NewApplication(
		newrelic.ConfigAppName("escrow-metrics-test"),
		newrelic.ConfigEnabled(false),
	)
	require.NoError(t, err)

	logger := NewNewRelicLogger(nr)
	assert.Equal(t, logrus.StandardLogger().GetLevel(), logger.GetLevel())

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.InfoLevel)

	logger.WithField("escrow", "addr").Info("escrow closed")

	line := buf.String()
	assert.True(t, strings.HasSuffix(line, "\n"))
	assert.Equal(t, 1, strings.Count(line, "\n"))
	assert.Contains(t, line, `msg="escrow closed"`)
	assert.Contains(t, line, "escrow=addr")
}
