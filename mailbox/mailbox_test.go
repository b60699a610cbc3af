package mailbox

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/glasspath/communique/account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectSentFolder(t *testing.T) {
	testCases := []struct {
		description string
		folders     []Folder
		expected    string
	}{
		{
			description: "special-use attribute wins over names",
			folders: []Folder{
				{Name: "Sent", Delim: '/'},
				{Name: "Verzonden items", Delim: '/', Attrs: []imap.MailboxAttr{imap.MailboxAttrSent}},
			},
			expected: "Verzonden items",
		},
		{
			description: "attribute compared case-insensitively",
			folders: []Folder{
				{Name: "Gesendet", Delim: '.', Attrs: []imap.MailboxAttr{"\\sent"}},
			},
			expected: "Gesendet",
		},
		{
			description: "plain name",
			folders: []Folder{
				{Name: "INBOX", Delim: '/'},
				{Name: "sent items", Delim: '/'},
			},
			expected: "sent items",
		},
		{
			description: "names tried in order of preference",
			folders: []Folder{
				{Name: "Sent Messages", Delim: '/'},
				{Name: "Sent", Delim: '/'},
			},
			expected: "Sent",
		},
		{
			description: "gmail",
			folders: []Folder{
				{Name: "INBOX", Delim: '/'},
				{Name: "[Gmail]", Delim: '/', Attrs: []imap.MailboxAttr{imap.MailboxAttrNoSelect}},
				{Name: "[Gmail]/Sent Mail", Delim: '/'},
			},
			expected: "[Gmail]/Sent Mail",
		},
		{
			description: "nested under the inbox",
			folders: []Folder{
				{Name: "INBOX", Delim: '.'},
				{Name: "INBOX.Sent", Delim: '.'},
			},
			expected: "INBOX.Sent",
		},
		{
			description: "last path element",
			folders: []Folder{
				{Name: "INBOX", Delim: '/'},
				{Name: "Archive/Sent Items", Delim: '/'},
			},
			expected: "Archive/Sent Items",
		},
		{
			description: "nothing that looks like a sent folder",
			folders: []Folder{
				{Name: "INBOX", Delim: '/'},
				{Name: "Drafts", Delim: '/', Attrs: []imap.MailboxAttr{imap.MailboxAttrDrafts}},
				{Name: "Sentinel", Delim: '/'},
			},
			expected: "",
		},
		{
			description: "no folders",
			expected:    "",
		},
	}

	for _, tc := range testCases {
		if got := SelectSentFolder(tc.folders); got != tc.expected {
			t.Errorf("%v: expected %q but got %q", tc.description, tc.expected, got)
		}
	}
}

func TestFolderLeaf(t *testing.T) {
	assert.Equal(t, "Sent", Folder{Name: "INBOX.Sent", Delim: '.'}.leaf())
	assert.Equal(t, "INBOX.Sent", Folder{Name: "INBOX.Sent"}.leaf())
	assert.Equal(t, "Sent", Folder{Name: "Sent", Delim: '/'}.leaf())
}

// closedPort returns a loopback port nothing listens on.
func closedPort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	p := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return p
}

func TestConnectionErrors(t *testing.T) {
	acct := &account.Account{
		Email: "me@example.com",
		IMAP: &account.IMAPConfig{
			Host:           "127.0.0.1",
			Port:           closedPort(t),
			Protocol:       account.IMAPS,
			SentFolderPath: "Sent",
		},
	}
	cl := &Client{}

	_, err := cl.FindSentFolderPath(context.Background(), acct, "pw", time.Second)
	assert.Error(t, err)
	assert.Error(t, cl.SaveToSentFolder(context.Background(), acct, "pw", time.Second, []byte("x")))

	_, err = cl.FindSentFolderPath(context.Background(), &account.Account{Email: "me@example.com"}, "pw", time.Second)
	assert.Error(t, err)

	noFolder := *acct
	imapConf := *acct.IMAP
	imapConf.SentFolderPath = ""
	noFolder.IMAP = &imapConf
	assert.Error(t, cl.SaveToSentFolder(context.Background(), &noFolder, "pw", time.Second, []byte("x")))
}

func TestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	acct := &account.Account{
		Email: "me@example.com",
		IMAP: &account.IMAPConfig{
			Host:     "127.0.0.1",
			Port:     closedPort(t),
			Protocol: account.IMAP,
		},
	}
	_, err := (&Client{}).FindSentFolderPath(ctx, acct, "pw", time.Second)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}
