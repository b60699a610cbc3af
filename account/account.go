package account

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// SMTPProtocol selects how the SMTP connection is secured.
type SMTPProtocol string

const (
	// Plain SMTP, upgraded with STARTTLS when the server offers it
	SMTP SMTPProtocol = "SMTP"
	// Implicit TLS from the first byte, usually on port 465
	SMTPS SMTPProtocol = "SMTPS"
	// Plain connection that must be upgraded with STARTTLS
	SMTPTLS SMTPProtocol = "SMTP_TLS"
)

// IMAPProtocol selects how the IMAP connection is secured.
type IMAPProtocol string

const (
	// Plain IMAP upgraded with STARTTLS
	IMAP IMAPProtocol = "IMAP"
	// Implicit TLS, usually on port 993
	IMAPS IMAPProtocol = "IMAPS"
)

// Host prefixes and ports tried, in order, when looking for the servers of
// an email domain. The empty prefix means the bare domain.
var (
	CommonSMTPHostPrefixes = []string{"smtp.", "mail.", ""}
	CommonSMTPPorts        = []int{587, 465, 25}
	CommonIMAPHostPrefixes = []string{"imap.", "mail.", ""}
	CommonIMAPPorts        = []int{993, 143}
)

// DefaultSMTPProtocol returns the protocol conventionally used on port.
func DefaultSMTPProtocol(port int) SMTPProtocol {
	if port == 465 {
		return SMTPS
	}
	return SMTPTLS
}

// DefaultIMAPProtocol returns the protocol conventionally used on port.
func DefaultIMAPProtocol(port int) IMAPProtocol {
	if port == 993 {
		return IMAPS
	}
	return IMAP
}

// ParseSMTPProtocol accepts the protocol names case-insensitively.
func ParseSMTPProtocol(s string) (SMTPProtocol, error) {
	switch p := SMTPProtocol(strings.ToUpper(strings.TrimSpace(s))); p {
	case SMTP, SMTPS, SMTPTLS:
		return p, nil
	case "STARTTLS":
		return SMTPTLS, nil
	}
	return "", fmt.Errorf("unknown SMTP protocol %q", s)
}

// ParseIMAPProtocol accepts the protocol names case-insensitively.
func ParseIMAPProtocol(s string) (IMAPProtocol, error) {
	switch p := IMAPProtocol(strings.ToUpper(strings.TrimSpace(s))); p {
	case IMAP, IMAPS:
		return p, nil
	}
	return "", fmt.Errorf("unknown IMAP protocol %q", s)
}

// SMTPConfig holds the outgoing server settings of an Account.
type SMTPConfig struct {
	Host     string       `xml:"host"`
	Port     int          `xml:"port"`
	Protocol SMTPProtocol `xml:"protocol"`
}

// IMAPConfig holds the incoming server settings of an Account. Only
// the sent folder is used: a copy of every message sent over SMTP is
// appended there.
type IMAPConfig struct {
	Host           string       `xml:"host"`
	Port           int          `xml:"port"`
	Protocol       IMAPProtocol `xml:"protocol"`
	SentFolderPath string       `xml:"sentFolderPath"`
}

// Account is a persisted sender identity. Either configuration may be nil.
type Account struct {
	Name  string      `xml:"name"`
	Email string      `xml:"email"`
	SMTP  *SMTPConfig `xml:"smtpConfiguration,omitempty"`
	IMAP  *IMAPConfig `xml:"imapConfiguration,omitempty"`
}

// Address returns the From address of the account.
func (a *Account) Address() *mail.Address {
	return &mail.Address{Name: a.Name, Address: a.Email}
}

// Validate reports the first problem that would keep the account from
// sending mail.
func (a *Account) Validate() error {
	if a.Email == "" {
		return errors.New("the account has no email address")
	}
	if _, err := mail.ParseAddress(a.Email); err != nil {
		return fmt.Errorf("the account email %q is not an address: %w", a.Email, err)
	}

	if a.SMTP == nil {
		return errors.New("the account has no SMTP configuration")
	}
	s := a.SMTP
	if err := validateHostPort(s.Host, s.Port); err != nil {
		return fmt.Errorf("invalid SMTP configuration: %w", err)
	}
	if _, err := ParseSMTPProtocol(string(s.Protocol)); err != nil {
		return err
	}

	if i := a.IMAP; i != nil {
		if err := validateHostPort(i.Host, i.Port); err != nil {
			return fmt.Errorf("invalid IMAP configuration: %w", err)
		}
		if _, err := ParseIMAPProtocol(string(i.Protocol)); err != nil {
			return err
		}
	}
	return nil
}

func validateHostPort(host string, port int) error {
	if strings.TrimSpace(host) == "" {
		return errors.New("the host is blank")
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %v is out of range", port)
	}
	return nil
}

// Describe returns a one-line summary for account listings.
func (a *Account) Describe() string {
	var b strings.Builder
	if a.SMTP != nil {
		fmt.Fprintf(&b, "SMTP %v:%v (%v)", a.SMTP.Host, a.SMTP.Port, a.SMTP.Protocol)
	} else {
		b.WriteString("no SMTP server")
	}
	if a.IMAP != nil {
		fmt.Fprintf(&b, ", IMAP %v:%v (%v)", a.IMAP.Host, a.IMAP.Port, a.IMAP.Protocol)
		if a.IMAP.SentFolderPath != "" {
			fmt.Fprintf(&b, " sent folder %q", a.IMAP.SentFolderPath)
		}
	}
	return b.String()
}

// String is used by list renderers.
func (a *Account) String() string {
	if a.Name != "" && a.Name != a.Email {
		return fmt.Sprintf("%v <%v>", a.Name, a.Email)
	}
	return a.Email
}
