package email

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glasspath/communique/account"
	"github.com/glasspath/communique/mailable"
	"github.com/glasspath/communique/smtptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, configure ...func(*smtptest.InProcessServer)) *smtptest.InProcessServer {
	t.Helper()
	k, c, err := smtptest.GenerateTLSFiles(t)
	require.NoError(t, err)

	srv := smtptest.NewInProcessServer(k, c)
	for _, f := range configure {
		f(srv)
	}
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Close)
	return srv
}

func testAccount(srv *smtptest.InProcessServer, p account.SMTPProtocol) *account.Account {
	return &account.Account{
		Name:  "Me",
		Email: "me@example.com",
		SMTP: &account.SMTPConfig{
			Host:     srv.Host(),
			Port:     srv.Port(),
			Protocol: p,
		},
	}
}

func testMessage(t *testing.T) *mailable.Mailable {
	return &mailable.Mailable{
		To:      []string{"you@example.com"},
		Bcc:     []string{"hidden@example.com"},
		Subject: "Test",
		Text:    "Hello this is my email body",
		HTML:    "<p>Hello this is my email body.</p>",
	}
}

func TestSend(t *testing.T) {
	testCases := []struct {
		description string
		protocol    account.SMTPProtocol
		implicitTLS bool
	}{
		{
			description: "STARTTLS",
			protocol:    account.SMTPTLS,
		},
		{
			description: "opportunistic STARTTLS",
			protocol:    account.SMTP,
		},
		{
			description: "implicit TLS",
			protocol:    account.SMTPS,
			implicitTLS: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			srv := startServer(t, func(s *smtptest.InProcessServer) {
				if tc.implicitTLS {
					s.UseImplicitTLS()
				}
			})
			acct := testAccount(srv, tc.protocol)
			m := testMessage(t)

			msg, err := Build(m, acct.Address())
			require.NoError(t, err)

			s := &Sender{TLSConfig: srv.ClientTLSConfig()}
			err = s.Send(context.Background(), acct, "mypassword", 5*time.Second, msg, m.Recipients())
			require.NoError(t, err)

			msgs := srv.Messages()
			require.Len(t, msgs, 1)
			assert.Equal(t, "me@example.com", msgs[0].From)
			assert.Equal(t, "me@example.com", msgs[0].User)
			assert.Equal(t, []string{"you@example.com", "hidden@example.com"}, msgs[0].Rcpts)
			assert.NotContains(t, msgs[0].Body, "hidden@example.com")

			_, parts, err := smtptest.ParseParts(msgs[0].Body)
			require.NoError(t, err)
			require.Len(t, parts, 2)
			assert.Equal(t, m.Text, parts[0].Body)
			assert.Equal(t, m.HTML, parts[1].Body)
		})
	}
}

func TestSendErrors(t *testing.T) {
	srv := startServer(t, func(s *smtptest.InProcessServer) {
		s.RequirePassword("right")
	})
	s := &Sender{TLSConfig: srv.ClientTLSConfig()}
	msg := []byte("Subject: hi\r\n\r\nhi\r\n")
	rcpts := []string{"you@example.com"}

	testCases := []struct {
		description string
		acct        *account.Account
		password    string
		rcpts       []string
	}{
		{
			description: "wrong password",
			acct:        testAccount(srv, account.SMTPTLS),
			password:    "wrong",
			rcpts:       rcpts,
		},
		{
			description: "no password for a server that requires one",
			acct:        testAccount(srv, account.SMTPTLS),
			rcpts:       rcpts,
		},
		{
			description: "no recipients",
			acct:        testAccount(srv, account.SMTPTLS),
			password:    "right",
		},
		{
			description: "no SMTP configuration",
			acct:        &account.Account{Email: "me@example.com"},
			password:    "right",
			rcpts:       rcpts,
		},
		{
			description: "TLS handshake on a plain port",
			acct:        testAccount(srv, account.SMTPS),
			password:    "right",
			rcpts:       rcpts,
		},
		{
			description: "untrusted certificate",
			acct: func() *account.Account {
				a := testAccount(srv, account.SMTPTLS)
				a.SMTP.Host = "localhost"
				return a
			}(),
			password: "right",
			rcpts:    rcpts,
		},
	}

	for _, tc := range testCases {
		err := s.Send(context.Background(), tc.acct, tc.password, 2*time.Second, msg, tc.rcpts)
		if err == nil {
			t.Errorf("%v: expected an error but got none", tc.description)
		}
	}
	assert.Empty(t, srv.Messages())

	err := s.Send(context.Background(), testAccount(srv, account.SMTPTLS), "", time.Second, msg, nil)
	assert.True(t, errors.Is(err, mailable.ErrNoRecipients))
}

func TestSendCancelled(t *testing.T) {
	srv := startServer(t)
	s := &Sender{TLSConfig: srv.ClientTLSConfig()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Send(ctx, testAccount(srv, account.SMTPTLS), "pw", time.Second, []byte("x"), []string{"you@example.com"})
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestSenderTest(t *testing.T) {
	srv := startServer(t, func(s *smtptest.InProcessServer) {
		s.RequirePassword("right")
	})
	s := &Sender{TLSConfig: srv.ClientTLSConfig()}

	assert.NoError(t, s.Test(context.Background(), testAccount(srv, account.SMTPTLS), "right", 2*time.Second))
	assert.Error(t, s.Test(context.Background(), testAccount(srv, account.SMTPTLS), "wrong", 2*time.Second))
	assert.Error(t, s.Test(context.Background(), &account.Account{}, "right", 2*time.Second))
	assert.Empty(t, srv.Messages())
}

func TestSenderTestNobodyListening(t *testing.T) {
	srv := startServer(t)
	acct := testAccount(srv, account.SMTPTLS)
	srv.Close()

	s := &Sender{}
	assert.Error(t, s.Test(context.Background(), acct, "pw", time.Second))
}
