package share

import (
	"path/filepath"
	"testing"

	"github.com/glasspath/communique/mailable"
	"github.com/stretchr/testify/assert"
)

func TestThunderbirdCommand(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.pdf")
	b := filepath.Join(dir, "b c.pdf")
	body := filepath.Join(dir, "draft.html")
	slashed := filepath.ToSlash(dir)
	if slashed[0] != '/' {
		slashed = "/" + slashed
	}

	testCases := []struct {
		description string
		m           *mailable.Mailable
		expected    string
	}{
		{
			description: "all fields",
			m: &mailable.Mailable{
				To:          []string{"Jane <jane@example.com>", "bob@example.com"},
				Cc:          []string{"c@example.com"},
				Bcc:         []string{"d@example.com"},
				Subject:     "Hello, world",
				Attachments: []string{a, b},
			},
			expected: "to='jane@example.com,bob@example.com',cc='c@example.com',bcc='d@example.com',subject='Hello, world',format=html,message='" + body + "',attachment='file://" + slashed + "/a.pdf,file://" + slashed + "/b%20c.pdf'",
		},
		{
			description: "apostrophe in subject",
			m: &mailable.Mailable{
				To:      []string{"jane@example.com"},
				Subject: "Bob's news",
			},
			expected: "to='jane@example.com',subject='Bob’s news',format=html,message='" + body + "'",
		},
		{
			description: "nothing filled in",
			m:           &mailable.Mailable{},
			expected:    "format=html,message='" + body + "'",
		},
	}

	for _, tc := range testCases {
		args := ThunderbirdCommand(tc.m, body)
		if assert.Len(t, args, 2, tc.description) {
			assert.Equal(t, "-compose", args[0], tc.description)
			assert.Equal(t, tc.expected, args[1], tc.description)
		}
	}
}

func TestOutlookClassicCommand(t *testing.T) {
	dir := t.TempDir()
	m := &mailable.Mailable{
		To:          []string{"jane@example.com"},
		Subject:     "Hi",
		Attachments: []string{filepath.Join(dir, "a.pdf"), filepath.Join(dir, "b.pdf")},
	}
	assert.Equal(t,
		[]string{"/c", "ipm.note", "/m", "mailto:jane@example.com?subject=Hi", "/a", filepath.Join(dir, "a.pdf")},
		OutlookClassicCommand(m),
	)

	m.Attachments = nil
	assert.Equal(t, []string{"/c", "ipm.note", "/m", "mailto:jane@example.com?subject=Hi"}, OutlookClassicCommand(m))
}

func TestCommandString(t *testing.T) {
	c := Command{Path: "thunderbird", Args: []string{"-compose", "to='a@example.com'"}}
	assert.Equal(t, "thunderbird -compose to='a@example.com'", c.String())
}
