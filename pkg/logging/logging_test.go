package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSetupWritesToFile(t *testing.T) {
	l := logrus.New()
	var stderr bytes.Buffer
	path := filepath.Join(t.TempDir(), "app.log")

	c, err := setup(l, &stderr, "debug", path)
	if err != nil {
		t.Fatal(err)
	}
	l.WithField("service", "iTunes").Debug("probe")
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "service=iTunes") || !strings.Contains(stderr.String(), "probe") {
		t.Fatalf("log not teed: file=%q stderr=%q", data, stderr.String())
	}
}

func TestSetupRejectsBadLevel(t *testing.T) {
	if _, err := setup(logrus.New(), &bytes.Buffer{}, "loud", ""); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestSetupDefaultsToInfo(t *testing.T) {
	l := logrus.New()
	if _, err := setup(l, &bytes.Buffer{}, "", ""); err != nil {
		t.Fatal(err)
	}
	if l.GetLevel() != logrus.InfoLevel {
		t.Fatalf("level = %s", l.GetLevel())
	}
}
