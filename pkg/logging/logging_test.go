package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	originalOutput := logger.Out
	logger.SetOutput(&buf)
	defer logger.SetOutput(originalOutput)

	SetLevel(InfoLevel)

	Debugf("Debug message")
	assert.Empty(t, buf.String())

	buf.Reset()
	Infof("Info message")
	assert.Contains(t, buf.String(), "Info message")
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	originalOutput := logger.Out
	logger.SetOutput(&buf)
	defer logger.SetOutput(originalOutput)

	SetLevel(DebugLevel)

	WithFields(logrus.Fields{"peer": 7}).Warn("relaying not allowed")

	out := buf.String()
	assert.Contains(t, out, "relaying not allowed")
	assert.Contains(t, out, "peer=7")
}

func TestFileLogging(t *testing.T) {
	tempDir := t.TempDir()

	err := EnableFileLogging(tempDir, "test.log", 10, 3, 7)
	assert.NoError(t, err)
	defer logger.SetOutput(os.Stdout)

	SetLevel(InfoLevel)
	Infof("File log test message")

	content, err := os.ReadFile(filepath.Join(tempDir, "test.log"))
	assert.NoError(t, err)
	assert.Contains(t, string(content), "File log test message")
}

func TestSetFormatter(t *testing.T) {
	var buf bytes.Buffer
	originalOutput := logger.Out
	logger.SetOutput(&buf)
	defer func() {
		logger.SetOutput(originalOutput)
		SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}()

	SetLevel(InfoLevel)
	SetFormatter(&logrus.JSONFormatter{})

	Infof("JSON formatted message")

	out := buf.String()
	assert.Contains(t, out, "\"level\":\"info\"")
	assert.Contains(t, out, "\"msg\":\"JSON formatted message\"")
}
