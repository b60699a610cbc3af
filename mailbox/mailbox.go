package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/glasspath/communique/account"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout applies when a caller passes a zero timeout.
const DefaultTimeout = 30 * time.Second

// ErrNoSentFolder means the server has no folder that looks like the one
// for sent mail.
var ErrNoSentFolder = errors.New("no sent folder found")

// SentFolderNames are folder names used for sent mail by common servers,
// in order of preference.
var SentFolderNames = []string{
	"Sent",
	"Sent Items",
	"Sent Messages",
	"[Gmail]/Sent Mail",
	"INBOX.Sent",
}

// Client connects to IMAP servers. The zero value is ready to use.
type Client struct {
	// Base TLS settings. ServerName is set per connection.
	TLSConfig *tls.Config
}

func (cl *Client) tlsConfig(host string) *tls.Config {
	var c *tls.Config
	if cl.TLSConfig != nil {
		c = cl.TLSConfig.Clone()
	} else {
		c = &tls.Config{}
	}
	if c.ServerName == "" {
		c.ServerName = host
	}
	return c
}

// session is a logged in connection.
type session struct {
	c       *imapclient.Client
	conn    net.Conn
	stop    func() bool
	timeout time.Duration
}

// extend pushes the connection deadline out by the timeout before each
// command.
func (s *session) extend() {
	s.conn.SetDeadline(time.Now().Add(s.timeout))
}

func (s *session) close() {
	s.extend()
	if err := s.c.Logout().Wait(); err != nil {
		log.Debug().Err(err).Msg("IMAP logout failed")
	}
	s.c.Close()
	s.stop()
}

// login connects with the account's protocol, i.e., implicit TLS for IMAPS
// and STARTTLS otherwise, and logs in as the account's address.
func (cl *Client) login(ctx context.Context, acct *account.Account, password string, timeout time.Duration) (*session, error) {
	if acct == nil || acct.IMAP == nil {
		return nil, errors.New("the account has no IMAP configuration")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	conf := acct.IMAP
	addr := net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port))

	nd := &net.Dialer{Timeout: timeout}
	var conn net.Conn
	var err error
	if conf.Protocol == account.IMAPS {
		td := &tls.Dialer{NetDialer: nd, Config: cl.tlsConfig(conf.Host)}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = nd.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, ctxErr(ctx, fmt.Errorf("can't connect to %v: %w", addr, err))
	}

	s := &session{
		conn: conn,
		stop: context.AfterFunc(ctx, func() {
			conn.Close()
		}),
		timeout: timeout,
	}
	s.extend()

	opts := &imapclient.Options{TLSConfig: cl.tlsConfig(conf.Host)}
	if conf.Protocol == account.IMAPS {
		s.c = imapclient.New(conn, opts)
	} else {
		s.c, err = imapclient.NewStartTLS(conn, opts)
		if err != nil {
			s.stop()
			conn.Close()
			return nil, ctxErr(ctx, fmt.Errorf("STARTTLS with %v failed: %w", addr, err))
		}
	}

	if err := s.c.Login(acct.Email, password).Wait(); err != nil {
		s.c.Close()
		s.stop()
		return nil, ctxErr(ctx, fmt.Errorf("IMAP login as %v failed: %w", acct.Email, err))
	}
	return s, nil
}

func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// FindSentFolderPath lists the account's folders and returns the one for
// sent mail.
func (cl *Client) FindSentFolderPath(ctx context.Context, acct *account.Account, password string, timeout time.Duration) (string, error) {
	s, err := cl.login(ctx, acct, password, timeout)
	if err != nil {
		return "", err
	}
	defer s.close()

	s.extend()
	list, err := s.c.List("", "*", nil).Collect()
	if err != nil {
		return "", ctxErr(ctx, fmt.Errorf("can't list folders: %w", err))
	}

	folders := make([]Folder, 0, len(list))
	for _, d := range list {
		folders = append(folders, Folder{
			Name:  d.Mailbox,
			Delim: d.Delim,
			Attrs: d.Attrs,
		})
	}

	p := SelectSentFolder(folders)
	if p == "" {
		return "", ErrNoSentFolder
	}
	log.Debug().Str("host", acct.IMAP.Host).Str("folder", p).Msg("found the sent folder")
	return p, nil
}

// SaveToSentFolder appends msg, marked as read, to the account's sent
// folder.
func (cl *Client) SaveToSentFolder(ctx context.Context, acct *account.Account, password string, timeout time.Duration, msg []byte) error {
	if acct != nil && acct.IMAP != nil && acct.IMAP.SentFolderPath == "" {
		return errors.New("the account has no sent folder configured")
	}
	s, err := cl.login(ctx, acct, password, timeout)
	if err != nil {
		return err
	}
	defer s.close()

	folder := acct.IMAP.SentFolderPath
	s.extend()
	cmd := s.c.Append(folder, int64(len(msg)), &imap.AppendOptions{
		Flags: []imap.Flag{imap.FlagSeen},
		Time:  time.Now(),
	})
	if _, err := cmd.Write(msg); err != nil {
		cmd.Close()
		return ctxErr(ctx, fmt.Errorf("can't upload the message to %v: %w", folder, err))
	}
	if err := cmd.Close(); err != nil {
		return ctxErr(ctx, fmt.Errorf("can't upload the message to %v: %w", folder, err))
	}
	if _, err := cmd.Wait(); err != nil {
		return ctxErr(ctx, fmt.Errorf("the server refused the message for %v: %w", folder, err))
	}

	log.Info().Str("folder", folder).Str("host", acct.IMAP.Host).Msg("saved a copy in the sent folder")
	return nil
}

// Folder is a mailbox as listed by the server.
type Folder struct {
	Name string
	// Hierarchy delimiter, zero if the server has no hierarchy
	Delim rune
	Attrs []imap.MailboxAttr
}

func (f Folder) leaf() string {
	if f.Delim == 0 {
		return f.Name
	}
	i := strings.LastIndex(f.Name, string(f.Delim))
	if i < 0 {
		return f.Name
	}
	return f.Name[i+1:]
}

// SelectSentFolder returns the name of the folder for sent mail. A folder
// with the \Sent special-use attribute wins. Otherwise the names in
// SentFolderNames are tried in order, comparing case-insensitively against
// both the full name and its last path element. It returns "" if nothing
// matches.
func SelectSentFolder(folders []Folder) string {
	for _, f := range folders {
		for _, a := range f.Attrs {
			if strings.EqualFold(string(a), string(imap.MailboxAttrSent)) {
				return f.Name
			}
		}
	}
	for _, n := range SentFolderNames {
		for _, f := range folders {
			if strings.EqualFold(f.Name, n) {
				return f.Name
			}
		}
	}
	for _, n := range SentFolderNames {
		for _, f := range folders {
			if strings.EqualFold(f.leaf(), n) {
				return f.Name
			}
		}
	}
	return ""
}
