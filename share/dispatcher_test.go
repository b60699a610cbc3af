package share

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/glasspath/communique/account"
	"github.com/glasspath/communique/credential"
	"github.com/glasspath/communique/email"
	"github.com/glasspath/communique/mailable"
	"github.com/glasspath/communique/smtptest"
	"github.com/glasspath/communique/userconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLauncher struct {
	files    []string
	urls     []string
	commands []Command
	err      error
}

func (l *fakeLauncher) OpenFile(path string) error {
	l.files = append(l.files, path)
	return l.err
}

func (l *fakeLauncher) OpenURL(url string) error {
	l.urls = append(l.urls, url)
	return l.err
}

func (l *fakeLauncher) Start(c Command) error {
	l.commands = append(l.commands, c)
	return l.err
}

type fakeLogin struct {
	creds  Credentials
	err    error
	emails []string
}

func (l *fakeLogin) Login(_ context.Context, email string) (Credentials, error) {
	l.emails = append(l.emails, email)
	return l.creds, l.err
}

type fakeFinder struct {
	acct  *account.Account
	err   error
	calls []string
}

func (f *fakeFinder) Find(_ context.Context, email, password string) (*account.Account, error) {
	f.calls = append(f.calls, email+"/"+password)
	return f.acct, f.err
}

type fakeSMTP struct {
	msgs      [][]byte
	rcpts     [][]string
	passwords []string
	err       error
}

func (s *fakeSMTP) Send(_ context.Context, _ *account.Account, password string, _ time.Duration, msg []byte, rcpts []string) error {
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msg)
	s.rcpts = append(s.rcpts, rcpts)
	s.passwords = append(s.passwords, password)
	return nil
}

type fakeIMAP struct {
	saved int
	err   error
}

func (i *fakeIMAP) SaveToSentFolder(context.Context, *account.Account, string, time.Duration, []byte) error {
	if i.err != nil {
		return i.err
	}
	i.saved++
	return nil
}

func testAccount() *account.Account {
	return &account.Account{
		Name:  "Me",
		Email: "me@example.com",
		SMTP:  &account.SMTPConfig{Host: "smtp.example.com", Port: 587, Protocol: account.SMTPTLS},
		IMAP:  &account.IMAPConfig{Host: "imap.example.com", Port: 993, Protocol: account.IMAPS, SentFolderPath: "Sent"},
	}
}

func testMailable() *mailable.Mailable {
	return &mailable.Mailable{
		To:      []string{"you@example.com"},
		Bcc:     []string{"hidden@example.com"},
		Subject: "Quarterly report",
		Text:    "Hello",
		HTML:    "<p>Hello</p>",
	}
}

type fixture struct {
	d         *Dispatcher
	launcher  *fakeLauncher
	login     *fakeLogin
	finder    *fakeFinder
	smtp      *fakeSMTP
	imap      *fakeIMAP
	passwords *credential.Keyring
}

func newFixture(t *testing.T, acct *account.Account) *fixture {
	t.Helper()
	conf := userconfig.NewConfiguration()
	if acct != nil {
		conf.AddAccount(acct)
	}
	f := &fixture{
		launcher:  &fakeLauncher{},
		login:     &fakeLogin{},
		finder:    &fakeFinder{},
		smtp:      &fakeSMTP{},
		imap:      &fakeIMAP{},
		passwords: credential.NewKeyring(keyring.NewArrayKeyring(nil)),
	}
	f.d = &Dispatcher{
		Config:     conf,
		ConfigPath: filepath.Join(t.TempDir(), "configuration.xml"),
		TempDir:    filepath.Join(t.TempDir(), "temp"),
		Passwords:  f.passwords,
		Login:      f.login,
		Finder:     f.finder,
		SMTP:       f.smtp,
		IMAP:       f.imap,
		Launcher:   f.launcher,
		History:    newTestHistory(t),
	}
	return f
}

func TestSendUnknownIsNoOp(t *testing.T) {
	f := newFixture(t, testAccount())
	require.NoError(t, f.d.Send(context.Background(), Unknown, testMailable()))
	assert.Empty(t, f.launcher.urls)
	assert.Empty(t, f.smtp.msgs)

	records, err := f.d.History.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSendUnsupported(t *testing.T) {
	for _, m := range []Mode{WindowsMAPI, WindowsUWPShareMenu, WindowsOutlookClassicObjectModel, MacAppKitSharingService, GlasspathSync, Mode(99)} {
		f := newFixture(t, testAccount())
		err := f.d.Send(context.Background(), m, testMailable())
		assert.True(t, errors.Is(err, ErrUnsupportedMode), m.String())

		var se *ShareError
		if assert.True(t, errors.As(err, &se), m.String()) {
			assert.Equal(t, m, se.Mode)
		}
	}
}

func TestSendSMTPWithStoredPassword(t *testing.T) {
	f := newFixture(t, testAccount())
	require.NoError(t, f.passwords.Set("me@example.com", "secret"))

	var sent []Record
	f.d.OnSent = func(r Record) { sent = append(sent, r) }

	require.NoError(t, f.d.Send(context.Background(), SMTP, testMailable()))

	assert.Empty(t, f.login.emails, "the login prompt should be skipped")
	require.Len(t, f.smtp.msgs, 1)
	assert.Equal(t, []string{"secret"}, f.smtp.passwords)
	assert.Equal(t, []string{"you@example.com", "hidden@example.com"}, f.smtp.rcpts[0])
	assert.NotContains(t, string(f.smtp.msgs[0]), "hidden@example.com")
	assert.Equal(t, 1, f.imap.saved)

	require.Len(t, sent, 1)
	id, err := email.MessageID(f.smtp.msgs[0])
	require.NoError(t, err)
	assert.Equal(t, id, sent[0].MessageID)
	assert.Equal(t, "me@example.com", sent[0].Account)

	records, err := f.d.History.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Quarterly report", records[0].Subject)
	assert.Equal(t, SMTP, records[0].Mode)
}

func TestSendSMTPPrompts(t *testing.T) {
	f := newFixture(t, testAccount())
	f.login.creds = Credentials{Password: "typed"}

	require.NoError(t, f.d.Send(context.Background(), SMTP, testMailable()))
	assert.Equal(t, []string{"me@example.com"}, f.login.emails)
	assert.Equal(t, []string{"typed"}, f.smtp.passwords)

	_, err := f.passwords.Get("me@example.com")
	assert.True(t, errors.Is(err, credential.ErrNotFound), "the password shouldn't be stored unless asked to")
}

func TestSendSMTPFindsAccount(t *testing.T) {
	f := newFixture(t, nil)
	f.login.creds = Credentials{Email: "Me <me@example.com>", Password: "secret", Remember: true}
	f.finder.acct = testAccount()

	require.NoError(t, f.d.Send(context.Background(), SMTP, testMailable()))

	assert.Equal(t, []string{""}, f.login.emails, "the prompt should ask for an address")
	assert.Equal(t, []string{"me@example.com/secret"}, f.finder.calls)
	require.Len(t, f.smtp.msgs, 1)

	require.Len(t, f.d.Config.Accounts, 1)
	assert.Equal(t, 0, f.d.Config.SelectedAccount)

	saved := userconfig.Load(f.d.ConfigPath)
	require.NotNil(t, saved.Account())
	assert.Equal(t, "me@example.com", saved.Account().Email)

	p, err := f.passwords.Get("me@example.com")
	require.NoError(t, err)
	assert.Equal(t, "secret", p)
}

func TestSendSMTPErrors(t *testing.T) {
	sendErr := errors.New("550 rejected")
	findErr := errors.New("nothing found")

	testCases := []struct {
		description   string
		account       *account.Account
		configure     func(*fixture)
		m             *mailable.Mailable
		expected      error
		shouldBeError bool
	}{
		{
			description:   "no recipients",
			account:       testAccount(),
			m:             &mailable.Mailable{Subject: "x"},
			expected:      mailable.ErrNoRecipients,
			shouldBeError: true,
		},
		{
			description: "login cancelled",
			account:     testAccount(),
			configure: func(f *fixture) {
				f.login.err = ErrCancelled
			},
			expected:      ErrCancelled,
			shouldBeError: true,
		},
		{
			description: "finder fails",
			configure: func(f *fixture) {
				f.login.creds = Credentials{Email: "me@example.com", Password: "p"}
				f.finder.err = findErr
			},
			expected:      findErr,
			shouldBeError: true,
		},
		{
			description: "login returns no address",
			configure: func(f *fixture) {
				f.login.creds = Credentials{Email: "nope", Password: "p"}
			},
			shouldBeError: true,
		},
		{
			description: "send fails",
			account:     testAccount(),
			configure: func(f *fixture) {
				f.login.creds = Credentials{Password: "p"}
				f.smtp.err = sendErr
			},
			expected:      sendErr,
			shouldBeError: true,
		},
		{
			description: "saving to the sent folder fails",
			account:     testAccount(),
			configure: func(f *fixture) {
				f.login.creds = Credentials{Password: "p"}
				f.imap.err = errors.New("NO [TRYCREATE]")
			},
			shouldBeError: false,
		},
	}

	for _, tc := range testCases {
		f := newFixture(t, tc.account)
		if tc.configure != nil {
			tc.configure(f)
		}
		m := tc.m
		if m == nil {
			m = testMailable()
		}

		err := f.d.Send(context.Background(), SMTP, m)
		if (err != nil) != tc.shouldBeError {
			t.Errorf("%v: unexpected error status--wanted %v but got %v with error %v", tc.description, tc.shouldBeError, err != nil, err)
			continue
		}
		if tc.expected != nil && !errors.Is(err, tc.expected) {
			t.Errorf("%v: expected %v but got %v", tc.description, tc.expected, err)
		}
		if err != nil {
			records, _ := f.d.History.List()
			assert.Empty(t, records, tc.description)
		}
	}
}

func TestSendEml(t *testing.T) {
	f := newFixture(t, testAccount())
	require.NoError(t, f.d.Send(context.Background(), EML, testMailable()))

	p := filepath.Join(f.d.TempDir, "draft.eml")
	assert.Equal(t, []string{p}, f.launcher.files)
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Contains(t, string(b), "X-Unsent: 1")
	assert.Contains(t, string(b), "me@example.com")
	assert.Empty(t, f.smtp.msgs)
}

func TestSendURIModes(t *testing.T) {
	dir := t.TempDir()
	one := filepath.Join(dir, "report.pdf")
	two := filepath.Join(dir, "notes.txt")
	for _, p := range []string{one, two} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	testCases := []struct {
		description string
		mode        Mode
		attachments []string
		prefix      string
		openedDirs  []string
	}{
		{
			description: "mailto",
			mode:        Mailto,
			prefix:      "mailto:you@example.com?",
		},
		{
			description: "gmail with one attachment",
			mode:        GmailCompose,
			attachments: []string{one},
			prefix:      "https://mail.google.com/",
			openedDirs:  []string{dir},
		},
		{
			description: "outlook live with two attachments",
			mode:        OutlookLiveCompose,
			attachments: []string{one, two},
			prefix:      "https://outlook.live.com/",
		},
		{
			description: "outlook with a missing attachment",
			mode:        OutlookCompose,
			attachments: []string{filepath.Join(dir, "gone.pdf")},
			prefix:      "https://outlook.office.com/",
		},
	}

	for _, tc := range testCases {
		f := newFixture(t, nil)
		m := testMailable()
		m.Attachments = tc.attachments

		require.NoError(t, f.d.Send(context.Background(), tc.mode, m), tc.description)
		if assert.Len(t, f.launcher.urls, 1, tc.description) {
			assert.True(t, strings.HasPrefix(f.launcher.urls[0], tc.prefix), "%v: %v", tc.description, f.launcher.urls[0])
		}
		assert.Equal(t, tc.openedDirs, f.launcher.files, tc.description)
		assert.Empty(t, f.login.emails, tc.description)
	}
}

func TestSendCommandLineModes(t *testing.T) {
	f := newFixture(t, nil)
	f.d.Preferences = &userconfig.Preferences{ThunderbirdPath: "/opt/thunderbird/thunderbird"}

	require.NoError(t, f.d.Send(context.Background(), ThunderbirdCommandLine, testMailable()))
	require.NoError(t, f.d.Send(context.Background(), WindowsOutlookClassicCommandLine, testMailable()))

	require.Len(t, f.launcher.commands, 2)
	tb := f.launcher.commands[0]
	assert.Equal(t, "/opt/thunderbird/thunderbird", tb.Path)
	body := filepath.Join(f.d.TempDir, "draft.html")
	assert.Contains(t, tb.Args[1], "message='"+body+"'")
	b, err := os.ReadFile(body)
	require.NoError(t, err)
	assert.Equal(t, "<p>Hello</p>", string(b))

	assert.Equal(t, DefaultOutlookExecutable, f.launcher.commands[1].Path)

	records, err := f.d.History.List()
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestSendLauncherFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.launcher.err = errors.New("no handler for mailto")

	err := f.d.Send(context.Background(), Mailto, testMailable())
	var se *ShareError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, Mailto, se.Mode)
	assert.Contains(t, err.Error(), "mailto")
}

func TestSendSMTPEndToEnd(t *testing.T) {
	k, c, err := smtptest.GenerateTLSFiles(t)
	require.NoError(t, err)
	srv := smtptest.NewInProcessServer(k, c)
	srv.RequirePassword("secret")
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Close)

	acct := &account.Account{
		Name:  "Me",
		Email: "me@example.com",
		SMTP:  &account.SMTPConfig{Host: srv.Host(), Port: srv.Port(), Protocol: account.SMTPTLS},
	}
	f := newFixture(t, acct)
	f.d.SMTP = &email.Sender{TLSConfig: srv.ClientTLSConfig()}
	f.login.creds = Credentials{Password: "secret"}

	require.NoError(t, f.d.Send(context.Background(), SMTP, testMailable()))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "me@example.com", msgs[0].From)
	assert.ElementsMatch(t, []string{"you@example.com", "hidden@example.com"}, msgs[0].Rcpts)
	assert.Equal(t, 0, f.imap.saved, "the account has no IMAP settings")
}
