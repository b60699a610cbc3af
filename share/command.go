package share

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/glasspath/communique/mailable"
)

// Executables looked up on the PATH when no path is configured
const (
	DefaultThunderbirdExecutable = "thunderbird"
	DefaultOutlookExecutable     = "outlook.exe"
)

// Command is a program and its arguments.
type Command struct {
	Path string
	Args []string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// fileURL turns a local path into a file:/// URL.
func fileURL(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	p = filepath.ToSlash(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

// Single quotes delimit values in Thunderbird's -compose argument and
// can't be escaped.
func quoteValue(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "’") + "'"
}

// ThunderbirdCommand returns the arguments that open a Thunderbird compose
// window for m. messageFile holds the HTML body, since the body can't be
// passed on the command line reliably.
func ThunderbirdCommand(m *mailable.Mailable, messageFile string) []string {
	var fields []string
	add := func(key, value string) {
		if value != "" {
			fields = append(fields, key+"="+quoteValue(value))
		}
	}

	add("to", addresses(m.To))
	add("cc", addresses(m.Cc))
	add("bcc", addresses(m.Bcc))
	add("subject", m.Subject)
	fields = append(fields, "format=html")
	add("message", messageFile)
	if len(m.Attachments) > 0 {
		urls := make([]string, len(m.Attachments))
		for i, a := range m.Attachments {
			urls[i] = fileURL(a)
		}
		add("attachment", strings.Join(urls, ","))
	}
	return []string{"-compose", strings.Join(fields, ",")}
}

// OutlookClassicCommand returns the arguments that open a new Outlook
// Classic message for m. Outlook accepts a single attachment on the
// command line, so only the first one is passed.
func OutlookClassicCommand(m *mailable.Mailable) []string {
	args := []string{"/c", "ipm.note", "/m", MailtoURI(m)}
	if len(m.Attachments) > 0 {
		a := m.Attachments[0]
		if abs, err := filepath.Abs(a); err == nil {
			a = abs
		}
		args = append(args, "/a", a)
	}
	return args
}
