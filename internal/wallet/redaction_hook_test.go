package wallet

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestRedactionHook_RedactsMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.AddHook(RedactionHook())

	key := strings.Repeat("a1", 32)
	logger.Info("leaked key " + key)

	if strings.Contains(buf.String(), key) {
		t.Errorf("expected key to be redacted from log output, got: %s", buf.String())
	}
}

func TestRedactionHook_RedactsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.AddHook(RedactionHook())

	key := strings.Repeat("b2", 32)
	logger.WithField("privateKey", key).Info("signing")

	if strings.Contains(buf.String(), key) {
		t.Errorf("expected key field to be redacted, got: %s", buf.String())
	}
}
