package e2e

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/glasspath/communique/cli"
	"github.com/glasspath/communique/smtptest"
)

const relayPassword = "hunter2"

// testEnvironment manages all dependencies required to simulate a "real"
// environment and run the e2e tests. Callers should create this via
// startTestEnvironment.
type testEnvironment struct {
	SMTPServer *smtptest.InProcessServer
	// Holds the configuration, preferences, drafts, and history
	homeDir string
}

// startTestEnvironment spins up an SMTP server that requires relayPassword
// and a home directory with a chart image and an attachment in it. Both
// are cleaned up when the test ends.
func startTestEnvironment(t *testing.T) (*testEnvironment, error) {
	te := &testEnvironment{homeDir: t.TempDir()}

	key, cert, err := smtptest.GenerateTLSFiles(t)
	if err != nil {
		return nil, err
	}
	ts := smtptest.NewInProcessServer(key, cert)
	ts.RequirePassword(relayPassword)
	if err := ts.Start(); err != nil {
		return nil, fmt.Errorf("could not start the SMTP server: %w", err)
	}
	t.Cleanup(ts.Close)
	te.SMTPServer = ts

	// History goes through the environment like any other preference
	t.Setenv("COMMUNIQUE_HISTORY_DIR", te.path("history"))

	files := map[string][]byte{
		"chart.png":  {0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0},
		"report.txt": []byte("revenue,42\n"),
	}
	for n, b := range files {
		if err := os.WriteFile(te.path(n), b, 0o644); err != nil {
			return nil, err
		}
	}
	return te, nil
}

func (te *testEnvironment) path(name string) string {
	return filepath.Join(te.homeDir, name)
}

// run executes the command line with the test environment's files and
// returns stdout.
func (te *testEnvironment) run(args ...string) (string, error) {
	var out, errOut bytes.Buffer
	err := cli.Run(context.Background(), append([]string{
		"--config", te.path("configuration.xml"),
		"--preferences", te.path("preferences.yaml"),
		"--log-file", te.path("log.txt"),
	}, args...), &out, &errOut)
	if err != nil {
		return out.String(), fmt.Errorf("%w (stderr: %v)", err, errOut.String())
	}
	return out.String(), nil
}
