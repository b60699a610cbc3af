package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/glasspath/communique/account"
	"github.com/glasspath/communique/mailable"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout applies when a caller passes a zero timeout.
const DefaultTimeout = 30 * time.Second

// Sender delivers messages to the SMTP server of an account. The zero value
// is ready to use.
type Sender struct {
	// Base TLS settings. ServerName is set per connection. Tests use this
	// to trust a self-signed certificate.
	TLSConfig *tls.Config
	// Name announced with EHLO, "localhost" if empty
	LocalName string
}

func (s *Sender) tlsConfig(host string) *tls.Config {
	var c *tls.Config
	if s.TLSConfig != nil {
		c = s.TLSConfig.Clone()
	} else {
		c = &tls.Config{}
	}
	if c.ServerName == "" {
		c.ServerName = host
	}
	return c
}

// dial connects to the server and reads its greeting. The connection is
// closed when ctx is cancelled; the returned stop function detaches it
// from ctx.
func (s *Sender) dial(ctx context.Context, conf *account.SMTPConfig, timeout time.Duration) (*smtp.Client, func() bool, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	addr := net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port))

	var conn net.Conn
	var err error
	nd := &net.Dialer{Timeout: timeout}
	if conf.Protocol == account.SMTPS {
		td := &tls.Dialer{NetDialer: nd, Config: s.tlsConfig(conf.Host)}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = nd.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, nil, ctxErr(ctx, fmt.Errorf("can't connect to %v: %w", addr, err))
	}

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})

	// The greeting is read without the client's own command timeout
	conn.SetDeadline(time.Now().Add(timeout))
	c, err := smtp.NewClient(conn, conf.Host)
	if err != nil {
		stop()
		conn.Close()
		return nil, nil, ctxErr(ctx, fmt.Errorf("no SMTP greeting from %v: %w", addr, err))
	}
	conn.SetDeadline(time.Time{})
	c.CommandTimeout = timeout
	c.SubmissionTimeout = timeout

	return c, stop, nil
}

// ctxErr prefers the context's error, since a cancelled dial surfaces as a
// closed connection.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// handshake says hello, negotiates TLS according to the protocol and
// authenticates when a password is given.
func (s *Sender) handshake(c *smtp.Client, conf *account.SMTPConfig, username, password string) error {
	localName := s.LocalName
	if localName == "" {
		localName = "localhost"
	}
	if err := c.Hello(localName); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	switch conf.Protocol {
	case account.SMTPS:
	case account.SMTPTLS:
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return errors.New("the server does not support STARTTLS")
		}
		if err := c.StartTLS(s.tlsConfig(conf.Host)); err != nil {
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	default:
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(s.tlsConfig(conf.Host)); err != nil {
				return fmt.Errorf("STARTTLS failed: %w", err)
			}
		}
	}

	if password == "" {
		return nil
	}
	if ok, _ := c.Extension("AUTH"); !ok {
		return errors.New("the server does not accept authentication")
	}
	if err := c.Auth(sasl.NewPlainClient("", username, password)); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	return nil
}

// Send delivers msg, a complete MIME message, to rcpts (bare addresses)
// through the account's SMTP server.
func (s *Sender) Send(ctx context.Context, acct *account.Account, password string, timeout time.Duration, msg []byte, rcpts []string) error {
	if acct == nil || acct.SMTP == nil {
		return errors.New("the account has no SMTP configuration")
	}
	return s.send(ctx, acct.SMTP, acct.Email, acct.Email, password, timeout, msg, rcpts)
}

// send authenticates as username and uses from as the envelope sender.
func (s *Sender) send(ctx context.Context, conf *account.SMTPConfig, username, from, password string, timeout time.Duration, msg []byte, rcpts []string) error {
	if len(rcpts) == 0 {
		return mailable.ErrNoRecipients
	}

	c, stop, err := s.dial(ctx, conf, timeout)
	if err != nil {
		return err
	}
	defer stop()
	defer c.Close()

	if err := s.handshake(c, conf, username, password); err != nil {
		return ctxErr(ctx, err)
	}

	if err := c.Mail(from, nil); err != nil {
		return ctxErr(ctx, fmt.Errorf("the server refused the sender %v: %w", from, err))
	}
	for _, r := range rcpts {
		if err := c.Rcpt(r); err != nil {
			return ctxErr(ctx, fmt.Errorf("the server refused the recipient %v: %w", r, err))
		}
	}

	wc, err := c.Data()
	if err != nil {
		return ctxErr(ctx, fmt.Errorf("DATA failed: %w", err))
	}
	if _, err := bytes.NewReader(msg).WriteTo(wc); err != nil {
		wc.Close()
		return ctxErr(ctx, fmt.Errorf("can't write the message: %w", err))
	}
	if err := wc.Close(); err != nil {
		return ctxErr(ctx, fmt.Errorf("the server did not accept the message: %w", err))
	}

	if err := c.Quit(); err != nil {
		// The message was accepted, so this is only worth a log line
		log.Warn().Err(err).Str("host", conf.Host).Msg("QUIT failed after sending")
	}

	log.Info().
		Str("from", from).
		Int("recipients", len(rcpts)).
		Str("host", conf.Host).
		Msg("message sent")
	return nil
}

// Test checks that the account's SMTP settings work without sending
// anything: connect, negotiate TLS, authenticate and quit.
func (s *Sender) Test(ctx context.Context, acct *account.Account, password string, timeout time.Duration) error {
	if acct == nil || acct.SMTP == nil {
		return errors.New("the account has no SMTP configuration")
	}

	c, stop, err := s.dial(ctx, acct.SMTP, timeout)
	if err != nil {
		return err
	}
	defer stop()
	defer c.Close()

	if err := s.handshake(c, acct.SMTP, acct.Email, password); err != nil {
		return ctxErr(ctx, err)
	}
	if err := c.Quit(); err != nil {
		return ctxErr(ctx, fmt.Errorf("QUIT failed: %w", err))
	}
	return nil
}
