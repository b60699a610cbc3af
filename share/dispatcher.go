package share

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"time"

	"github.com/glasspath/communique/account"
	"github.com/glasspath/communique/credential"
	"github.com/glasspath/communique/email"
	"github.com/glasspath/communique/mailable"
	"github.com/glasspath/communique/userconfig"
	"github.com/rs/zerolog/log"
)

var (
	// ErrUnsupportedMode is returned for modes that need operating system
	// automation this program doesn't do.
	ErrUnsupportedMode = errors.New("the send mode is not supported")
	// ErrCancelled is returned when the user backs out of a prompt.
	ErrCancelled = errors.New("cancelled by the user")
)

// Files written to the temp dir for desktop clients
const (
	emlFileName  = "draft.eml"
	htmlFileName = "draft.html"
)

// ShareError wraps any failure of Dispatcher.Send with the mode that was
// used.
type ShareError struct {
	Mode Mode
	Err  error
}

func (e *ShareError) Error() string {
	return fmt.Sprintf("can't share the email through %v: %v", e.Mode, e.Err)
}

func (e *ShareError) Unwrap() error {
	return e.Err
}

// Credentials are what the login prompt returns.
type Credentials struct {
	Email    string
	Password string
	// Store the password so the prompt can be skipped next time
	Remember bool
}

// LoginPrompt asks the user for a password. email is empty when no account
// is configured yet, in which case the prompt asks for the address too.
// Backing out returns ErrCancelled.
type LoginPrompt interface {
	Login(ctx context.Context, email string) (Credentials, error)
}

// AccountFinder discovers account settings, e.g., *finder.Finder.
type AccountFinder interface {
	Find(ctx context.Context, email, password string) (*account.Account, error)
}

// MessageSender delivers a built message, e.g., *email.Sender.
type MessageSender interface {
	Send(ctx context.Context, acct *account.Account, password string, timeout time.Duration, msg []byte, rcpts []string) error
}

// SentFolderSaver keeps a copy of sent messages, e.g., *mailbox.Client.
type SentFolderSaver interface {
	SaveToSentFolder(ctx context.Context, acct *account.Account, password string, timeout time.Duration, msg []byte) error
}

// Dispatcher routes a Mailable to the transport of a send mode. Only
// Config, SMTP and Launcher are required; nil optional fields disable what
// they provide.
type Dispatcher struct {
	Config *userconfig.Configuration
	// Where Config is saved after an account is found. Empty means don't
	// save.
	ConfigPath  string
	Preferences *userconfig.Preferences
	// Defaults to userconfig.TempDir()
	TempDir string

	Passwords credential.Store
	Login     LoginPrompt
	Finder    AccountFinder
	SMTP      MessageSender
	IMAP      SentFolderSaver
	Launcher  Launcher
	History   *History

	// Called after a message was sent over SMTP
	OnSent func(Record)
}

// Send hands m to the transport of mode. Unknown is a no-op. Failures are
// returned as *ShareError.
func (d *Dispatcher) Send(ctx context.Context, mode Mode, m *mailable.Mailable) error {
	if mode == Unknown {
		return nil
	}
	log.Info().Str("mode", mode.String()).Str("subject", m.Subject).Msg("sharing email")

	var (
		rec Record
		err error
	)
	switch mode {
	case SMTP:
		rec, err = d.sendSMTP(ctx, m)
	case EML:
		err = d.openEml(m)
	case Mailto:
		err = d.openURI(MailtoURI(m), m)
	case GmailCompose:
		err = d.openURI(GmailComposeURI(m), m)
	case OutlookLiveCompose:
		err = d.openURI(OutlookLiveComposeURI(m), m)
	case OutlookCompose:
		err = d.openURI(OutlookComposeURI(m), m)
	case ThunderbirdCommandLine:
		err = d.startThunderbird(m)
	case WindowsOutlookClassicCommandLine:
		err = d.startOutlookClassic(m)
	default:
		err = ErrUnsupportedMode
	}
	if err != nil {
		log.Error().Str("mode", mode.String()).Err(err).Msg("sharing failed")
		return &ShareError{Mode: mode, Err: err}
	}

	rec.Mode = mode
	rec.Subject = m.Subject
	rec.Recipients = m.Recipients()
	d.record(&rec)
	if mode == SMTP && d.OnSent != nil {
		d.OnSent(rec)
	}
	return nil
}

func (d *Dispatcher) record(r *Record) {
	if d.History == nil {
		return
	}
	if err := d.History.Add(r); err != nil {
		log.Warn().Err(err).Msg("can't record the email in the history")
	}
}

func (d *Dispatcher) tempDir() string {
	if d.TempDir != "" {
		if err := os.MkdirAll(d.TempDir, 0o700); err != nil {
			log.Error().Err(err).Str("dir", d.TempDir).Msg("can't create the temp dir")
		}
		return d.TempDir
	}
	return userconfig.TempDir()
}

func (d *Dispatcher) maxAttachmentBytes() int64 {
	if d.Preferences == nil {
		return 0
	}
	return int64(d.Preferences.MaxAttachmentSize)
}

// credentials returns the stored password of acct or asks for one.
func (d *Dispatcher) credentials(ctx context.Context, acct *account.Account) (Credentials, error) {
	if acct != nil && d.Passwords != nil {
		p, err := d.Passwords.Get(acct.Email)
		if err == nil {
			return Credentials{Email: acct.Email, Password: p}, nil
		}
		if !errors.Is(err, credential.ErrNotFound) {
			log.Warn().Err(err).Str("account", acct.Email).Msg("can't read the stored password")
		}
	}

	if d.Login == nil {
		return Credentials{}, errors.New("a password is needed but there is no way to ask for it")
	}
	var addr string
	if acct != nil {
		addr = acct.Email
	}
	c, err := d.Login.Login(ctx, addr)
	if err != nil {
		return Credentials{}, err
	}
	if acct != nil {
		c.Email = acct.Email
	}
	return c, nil
}

// findAccount runs the account finder and keeps what it found as the
// selected account.
func (d *Dispatcher) findAccount(ctx context.Context, c Credentials) (*account.Account, error) {
	if d.Finder == nil {
		return nil, errors.New("no account is configured")
	}
	addr := mailable.AddressOf(c.Email)
	if addr == "" {
		return nil, fmt.Errorf("%q is not an email address", c.Email)
	}
	acct, err := d.Finder.Find(ctx, addr, c.Password)
	if err != nil {
		return nil, err
	}

	d.Config.AddAccount(acct)
	if d.ConfigPath != "" {
		if err := d.Config.Save(d.ConfigPath); err != nil {
			log.Error().Err(err).Str("path", d.ConfigPath).Msg("can't save the configuration")
		}
	}
	return acct, nil
}

func (d *Dispatcher) sendSMTP(ctx context.Context, m *mailable.Mailable) (Record, error) {
	if err := m.Validate(d.maxAttachmentBytes()); err != nil {
		return Record{}, err
	}

	acct := d.Config.Account()
	c, err := d.credentials(ctx, acct)
	if err != nil {
		return Record{}, err
	}
	if acct == nil {
		if acct, err = d.findAccount(ctx, c); err != nil {
			return Record{}, err
		}
	}
	if c.Remember && d.Passwords != nil {
		if err := d.Passwords.Set(acct.Email, c.Password); err != nil {
			log.Warn().Err(err).Str("account", acct.Email).Msg("can't store the password")
		}
	}

	msg, err := email.Build(m, acct.Address())
	if err != nil {
		return Record{}, err
	}
	timeout := d.Config.TimeoutDuration()
	if err := d.SMTP.Send(ctx, acct, c.Password, timeout, msg, m.Recipients()); err != nil {
		return Record{}, err
	}

	// The message is out; a missing copy in the sent folder is only
	// worth a warning.
	if acct.IMAP != nil && d.IMAP != nil {
		if err := d.IMAP.SaveToSentFolder(ctx, acct, c.Password, timeout, msg); err != nil {
			log.Warn().Err(err).Str("account", acct.Email).Msg("sent, but can't save a copy to the sent folder")
		}
	}

	rec := Record{Account: acct.Email}
	if id, err := email.MessageID(msg); err == nil {
		rec.MessageID = id
	}
	return rec, nil
}

func (d *Dispatcher) openEml(m *mailable.Mailable) error {
	var from *mail.Address
	if acct := d.Config.Account(); acct != nil {
		from = acct.Address()
	}
	p := filepath.Join(d.tempDir(), emlFileName)
	if err := email.ExportEml(m, from, p); err != nil {
		return err
	}
	return d.Launcher.OpenFile(p)
}

func (d *Dispatcher) openURI(uri string, m *mailable.Mailable) error {
	if err := d.Launcher.OpenURL(uri); err != nil {
		return err
	}
	d.openAttachmentLocation(m)
	return nil
}

// openAttachmentLocation opens the directory of a single attachment so the
// user can drag it into a client that was opened without it.
func (d *Dispatcher) openAttachmentLocation(m *mailable.Mailable) {
	// TODO: open a common parent when several attachments share a directory
	if len(m.Attachments) != 1 {
		return
	}
	a := m.Attachments[0]
	fi, err := os.Stat(a)
	if err != nil || fi.IsDir() {
		return
	}
	if err := d.Launcher.OpenFile(filepath.Dir(a)); err != nil {
		log.Warn().Err(err).Str("attachment", a).Msg("can't open the attachment location")
	}
}

func (d *Dispatcher) startThunderbird(m *mailable.Mailable) error {
	p := filepath.Join(d.tempDir(), htmlFileName)
	if err := os.WriteFile(p, []byte(m.HTML), 0o600); err != nil {
		return fmt.Errorf("can't write the message body: %w", err)
	}
	exe := DefaultThunderbirdExecutable
	if d.Preferences != nil && d.Preferences.ThunderbirdPath != "" {
		exe = d.Preferences.ThunderbirdPath
	}
	return d.Launcher.Start(Command{Path: exe, Args: ThunderbirdCommand(m, p)})
}

func (d *Dispatcher) startOutlookClassic(m *mailable.Mailable) error {
	exe := DefaultOutlookExecutable
	if d.Preferences != nil && d.Preferences.OutlookPath != "" {
		exe = d.Preferences.OutlookPath
	}
	return d.Launcher.Start(Command{Path: exe, Args: OutlookClassicCommand(m)})
}
