// Package testlog captures logrus output in tests so they can assert on the
// messages a code path emits.
package testlog

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

// CaptureGlobal installs a capturing hook on the global logrus logger and
// raises its level to Trace so every emission is recorded. The prior level
// is restored and the hook drained when the test finishes.
func CaptureGlobal(t *testing.T) *logtest.Hook {
	t.Helper()
	hook := logtest.NewGlobal()
	prev := logrus.GetLevel()
	logrus.SetLevel(logrus.TraceLevel)
	t.Cleanup(func() {
		logrus.SetLevel(prev)
		hook.Reset()
	})
	return hook
}

// AssertContains fails t unless some captured entry's message contains want.
func AssertContains(t *testing.T, hook *logtest.Hook, want string) {
	t.Helper()
	for _, e := range hook.AllEntries() {
		if strings.Contains(e.Message, want) {
			return
		}
	}
	t.Fatalf("no captured log entry contains %q (%d entries captured)", want, len(hook.AllEntries()))
}

// AssertNotContains fails t if any captured entry's message contains what.
func AssertNotContains(t *testing.T, hook *logtest.Hook, what string) {
	t.Helper()
	for _, e := range hook.AllEntries() {
		if strings.Contains(e.Message, what) {
			t.Fatalf("captured log entry unexpectedly contains %q: %s", what, e.Message)
		}
	}
}
