package e2e

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glasspath/communique/smtptest"
)

// findPart returns the first part matching f, or nil.
func findPart(parts []smtptest.Part, f func(smtptest.Part) bool) *smtptest.Part {
	for i := range parts {
		if f(parts[i]) {
			return &parts[i]
		}
	}
	return nil
}

// Check that a draft with an inline image and an attachment arrives at the
// relay as one message, addressed to the relay's default recipient, with
// the image referenced from the HTML.
func TestRelaySendsDraft(t *testing.T) {
	testenv, err := startTestEnvironment(t)
	if err != nil {
		t.Fatalf("error starting test environment: %v", err)
	}

	draftPath := testenv.path("weekly.yaml")
	err = writeTemplate(draftPath, draftTemplate, draftOptions{
		Subject:     "Weekly numbers",
		Image:       "chart.png",
		Attachments: []string{"report.txt"},
	})
	if err != nil {
		t.Fatalf("can't create the draft: %v", err)
	}
	relayPath := testenv.path("relay.yaml")
	err = writeTemplate(relayPath, relayTemplate, relayOptions{
		RelayAddress: testenv.SMTPServer.Address(),
		Password:     relayPassword,
	})
	if err != nil {
		t.Fatalf("can't create the relay configuration: %v", err)
	}

	out, err := testenv.run("send", draftPath, "--relay", relayPath)
	if err != nil {
		t.Fatalf("could not send: %v", err)
	}
	if !strings.Contains(out, "Weekly numbers") {
		t.Errorf("expected the subject in the output but got %q", out)
	}

	em := testenv.SMTPServer.Messages()
	if len(em) != 1 {
		t.Fatalf("expected to receive one email, but got %v", len(em))
	}
	if len(em[0].Rcpts) != 1 || em[0].Rcpts[0] != "team@example.com" {
		t.Errorf("expected the relay's recipient but got %v", em[0].Rcpts)
	}
	if em[0].User != "reports" {
		t.Errorf("expected the relay's user name but got %q", em[0].User)
	}

	h, parts, err := smtptest.ParseParts(em[0].Body)
	if err != nil {
		t.Fatalf("could not parse the email: %v", err)
	}
	if s := h.Get("Subject"); s != "Weekly numbers" {
		t.Errorf("unexpected subject %q", s)
	}

	img := findPart(parts, func(p smtptest.Part) bool { return p.ContentType == "image/png" })
	if img == nil || img.ContentID == "" {
		t.Fatalf("expected an inline image with a content ID in %+v", parts)
	}
	html := findPart(parts, func(p smtptest.Part) bool { return p.ContentType == "text/html" })
	if html == nil {
		t.Fatal("expected an HTML part")
	}
	if !strings.Contains(html.Body, "cid:"+img.ContentID) {
		t.Errorf("expected the HTML to refer to cid:%v but got %v", img.ContentID, html.Body)
	}
	if findPart(parts, func(p smtptest.Part) bool { return p.ContentType == "text/plain" }) == nil {
		t.Error("expected a plain text alternative")
	}

	att := findPart(parts, func(p smtptest.Part) bool { return p.Filename == "report.txt" })
	if att == nil {
		t.Fatalf("expected the attachment in %+v", parts)
	}
	if att.Body != "revenue,42\n" {
		t.Errorf("unexpected attachment content %q", att.Body)
	}
}

func TestRelayWithWrongPassword(t *testing.T) {
	testenv, err := startTestEnvironment(t)
	if err != nil {
		t.Fatalf("error starting test environment: %v", err)
	}

	draftPath := testenv.path("draft.yaml")
	if err := writeTemplate(draftPath, draftTemplate, draftOptions{Subject: "Hello"}); err != nil {
		t.Fatalf("can't create the draft: %v", err)
	}
	relayPath := testenv.path("relay.yaml")
	err = writeTemplate(relayPath, relayTemplate, relayOptions{
		RelayAddress: testenv.SMTPServer.Address(),
		Password:     "not-" + relayPassword,
	})
	if err != nil {
		t.Fatalf("can't create the relay configuration: %v", err)
	}

	if _, err := testenv.run("send", draftPath, "--relay", relayPath); err == nil {
		t.Error("expected an authentication error but got nil")
	}
	if em := testenv.SMTPServer.Messages(); len(em) != 0 {
		t.Errorf("expected no email but got %v", len(em))
	}
}

// Test that an exported .eml opens as an unsent draft and that the draft
// is remembered for the next command.
func TestExportEml(t *testing.T) {
	testenv, err := startTestEnvironment(t)
	if err != nil {
		t.Fatalf("error starting test environment: %v", err)
	}

	draftPath := testenv.path("invite.yaml")
	err = writeTemplate(draftPath, draftTemplate, draftOptions{
		To:      "Ann <ann@example.com>, bob@example.com",
		Subject: "Launch party",
		Image:   "chart.png",
	})
	if err != nil {
		t.Fatalf("can't create the draft: %v", err)
	}

	if _, err := testenv.run("draft", "new", draftPath); err == nil {
		t.Error("expected draft new to refuse to replace the draft")
	}

	out, err := testenv.run("export", "eml", draftPath)
	if err != nil {
		t.Fatalf("could not export: %v", err)
	}
	emlPath := strings.TrimSpace(out)
	if filepath.Base(emlPath) != "launch-party.eml" {
		t.Errorf("unexpected file name %v", emlPath)
	}

	b, err := os.ReadFile(emlPath)
	if err != nil {
		t.Fatalf("can't read the export: %v", err)
	}
	h, parts, err := smtptest.ParseParts(string(b))
	if err != nil {
		t.Fatalf("could not parse the export: %v", err)
	}
	if h.Get("X-Unsent") != "1" {
		t.Error("expected the export to be marked as unsent")
	}
	if to := h.Get("To"); !strings.Contains(to, "ann@example.com") || !strings.Contains(to, "bob@example.com") {
		t.Errorf("unexpected To header %q", to)
	}
	if findPart(parts, func(p smtptest.Part) bool { return p.ContentType == "image/png" }) == nil {
		t.Errorf("expected the inline image in %+v", parts)
	}

	// No draft argument, so the one exported above is used
	out, err = testenv.run("export", "html", "-o", "-")
	if err != nil {
		t.Fatalf("could not export HTML: %v", err)
	}
	if !strings.Contains(out, "<h1>Launch party</h1>") {
		t.Errorf("expected the last opened draft but got %v", out)
	}
}

// Test that history is kept in the directory given through the
// environment.
func TestHistoryDirectoryFromEnvironment(t *testing.T) {
	testenv, err := startTestEnvironment(t)
	if err != nil {
		t.Fatalf("error starting test environment: %v", err)
	}

	out, err := testenv.run("history")
	if err != nil {
		t.Fatalf("could not list the history: %v", err)
	}
	if !strings.Contains(out, "Nothing has been shared yet.") {
		t.Errorf("expected an empty history but got %q", out)
	}
	if _, err := os.Stat(testenv.path("history")); err != nil {
		t.Errorf("expected the history database in the test environment: %v", err)
	}

	if _, err := os.Stat(testenv.path("log.txt")); err != nil {
		t.Errorf("expected a log file: %v", err)
	}
}
