package testutils

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

// TestHelper bundles a debug-level logger and a hook capturing everything it logs.
type TestHelper struct {
	T       *testing.T
	Logger  *logrus.Logger
	LogHook *logtest.Hook
}

// NewTestHelper creates a test helper whose logger records entries for assertions.
func NewTestHelper(t *testing.T) *TestHelper {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return &TestHelper{
		T:       t,
		Logger:  logger,
		LogHook: hook,
	}
}

// EntriesAt returns captured log messages at level.
func (h *TestHelper) EntriesAt(level logrus.Level) []string {
	var out []string
	for _, e := range h.LogHook.AllEntries() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

// ProjectPath resolves relPath against the module root (the directory holding go.mod).
func ProjectPath(relPath string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	root := wd
	for {
		if _, err := os.Stat(filepath.Join(root, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(root)
		if parent == root {
			return "", fmt.Errorf("could not find project root (go.mod not found)")
		}
		root = parent
	}
	return filepath.Join(root, relPath), nil
}
