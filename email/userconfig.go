package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/glasspath/communique/account"
	"github.com/glasspath/communique/mailable"
)

const smtpScheme string = "smtp"

// UserConfig is a relay configured in a YAML file rather than through the
// account list, for sending from scripts. It's parsed and validated by
// UnmarshalYAML.
type UserConfig struct {
	SMTPServerHost string
	SMTPServerPort int
	UserName       string
	Password       string
	FromAddress    string
	// Used when a message has no recipients of its own
	ToAddress string
	// Trust any certificate, e.g., for a relay on localhost
	SkipCertVerification bool
	// Defaults to DefaultTimeout
	Timeout time.Duration
}

// UnmarshalYAML parses a user-provided relay configuration, returning any
// parsing or validation errors.
func (uc *UserConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	v := make(map[string]string)
	err := unmarshal(&v)
	if err != nil {
		return fmt.Errorf("can't parse the email config: %v", err)
	}

	ra, ok := v["smtpServerAddress"]
	if !ok || ra == "" {
		return errors.New("the email config must include \"smtpServerAddress\"")
	}
	// Don't require the user to include a scheme. If we can't
	// find one, use one for SMTP.
	if !strings.Contains(ra, "://") {
		ra = smtpScheme + "://" + ra
	}
	u, err := url.Parse(ra)
	if err != nil {
		return fmt.Errorf("can't parse the SMTP server address: %v", err)
	}
	if u.Scheme != smtpScheme {
		return fmt.Errorf("the SMTP server address must use the %v:// scheme, not %v://", smtpScheme, u.Scheme)
	}
	if u.Port() == "" {
		return errors.New("the SMTP server address must include a port")
	}
	p, err := strconv.Atoi(u.Port())
	if err != nil {
		return fmt.Errorf("can't parse the SMTP server port: %v", err)
	}
	uc.SMTPServerHost = u.Hostname()
	uc.SMTPServerPort = p

	for _, k := range []string{"fromAddress", "toAddress", "username", "password"} {
		if v[k] == "" {
			return fmt.Errorf("the email config must include %q", k)
		}
	}
	for _, k := range []string{"fromAddress", "toAddress"} {
		if _, err := mail.ParseAddress(v[k]); err != nil {
			return fmt.Errorf("%v is not an email address: %v", k, err)
		}
	}
	uc.FromAddress = v["fromAddress"]
	uc.ToAddress = v["toAddress"]
	uc.UserName = v["username"]
	uc.Password = v["password"]

	if s, ok := v["skipCertVerification"]; ok {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("can't parse skipCertVerification as a boolean: %v", err)
		}
		uc.SkipCertVerification = b
	}

	if t, ok := v["timeout"]; ok {
		d, err := time.ParseDuration(t)
		if err != nil {
			return fmt.Errorf("can't parse the timeout as a duration: %v", err)
		}
		uc.Timeout = d
	}

	return nil
}

// CheckAndSetDefaults validates uc and either returns a copy of uc with
// default settings applied or returns an error due to an invalid
// configuration
func (uc *UserConfig) CheckAndSetDefaults() (UserConfig, error) {
	if uc.SMTPServerHost == "" || uc.SMTPServerPort == 0 {
		return UserConfig{}, errors.New("must supply an SMTP server address")
	}
	if uc.Password == "" || uc.UserName == "" {
		return UserConfig{}, errors.New("must supply a username and password")
	}
	if uc.ToAddress == "" || uc.FromAddress == "" {
		return UserConfig{}, errors.New("must supply a \"to\" address and a \"from\" address")
	}
	if uc.Timeout <= 0 {
		uc.Timeout = DefaultTimeout
	}
	return *uc, nil
}

// Account describes the relay as an account, picking the protocol from
// the port.
func (uc *UserConfig) Account() *account.Account {
	name := ""
	if a, err := mail.ParseAddress(uc.FromAddress); err == nil {
		name = a.Name
	}
	return &account.Account{
		Name:  name,
		Email: mailable.AddressOf(uc.FromAddress),
		SMTP: &account.SMTPConfig{
			Host:     uc.SMTPServerHost,
			Port:     uc.SMTPServerPort,
			Protocol: account.DefaultSMTPProtocol(uc.SMTPServerPort),
		},
	}
}

// Send delivers m through the relay. A message without recipients goes to
// ToAddress.
func (uc *UserConfig) Send(ctx context.Context, m *mailable.Mailable) error {
	c, err := uc.CheckAndSetDefaults()
	if err != nil {
		return err
	}
	if len(m.Recipients()) == 0 {
		m.To = []string{c.ToAddress}
	}

	acct := c.Account()
	msg, err := Build(m, acct.Address())
	if err != nil {
		return err
	}

	s := &Sender{}
	if c.SkipCertVerification {
		s.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	// The relay may authenticate with a user name that isn't the sender
	return s.send(ctx, acct.SMTP, c.UserName, acct.Email, c.Password, c.Timeout, msg, m.Recipients())
}
