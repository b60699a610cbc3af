package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validAccount() Account {
	return Account{
		Name:  "Me",
		Email: "me@example.com",
		SMTP:  &SMTPConfig{
			Host:     "smtp.example.com",
			Port:     587,
			Protocol: SMTPTLS,
		},
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		description   string
		mutate        func(a *Account)
		shouldBeError bool
	}{
		{
			description:   "valid case",
			mutate:        func(a *Account) {},
			shouldBeError: false,
		},
		{
			description:   "no email",
			mutate:        func(a *Account) { a.Email = "" },
			shouldBeError: true,
		},
		{
			description:   "email is not an address",
			mutate:        func(a *Account) { a.Email = "me at example" },
			shouldBeError: true,
		},
		{
			description:   "no smtp configuration",
			mutate:        func(a *Account) { a.SMTP = nil },
			shouldBeError: true,
		},
		{
			description:   "blank smtp host",
			mutate:        func(a *Account) { a.SMTP.Host = " " },
			shouldBeError: true,
		},
		{
			description:   "port out of range",
			mutate:        func(a *Account) { a.SMTP.Port = 70000 },
			shouldBeError: true,
		},
		{
			description:   "unknown smtp protocol",
			mutate:        func(a *Account) { a.SMTP.Protocol = "POP3" },
			shouldBeError: true,
		},
		{
			description: "valid imap configuration",
			mutate: func(a *Account) {
				a.IMAP = &IMAPConfig{Host: "imap.example.com", Port: 993, Protocol: IMAPS}
			},
			shouldBeError: false,
		},
		{
			description: "imap configuration without a port",
			mutate: func(a *Account) {
				a.IMAP = &IMAPConfig{Host: "imap.example.com", Protocol: IMAPS}
			},
			shouldBeError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			a := validAccount()
			tc.mutate(&a)
			err := a.Validate()
			if (err != nil) != tc.shouldBeError {
				t.Errorf(
					"%v: unexpected error status--wanted %v but got %v with error %v",
					tc.description,
					tc.shouldBeError,
					err != nil,
					err,
				)
			}
		})
	}
}

func TestDefaultProtocols(t *testing.T) {
	assert.Equal(t, SMTPS, DefaultSMTPProtocol(465))
	assert.Equal(t, SMTPTLS, DefaultSMTPProtocol(587))
	assert.Equal(t, SMTPTLS, DefaultSMTPProtocol(25))
	assert.Equal(t, IMAPS, DefaultIMAPProtocol(993))
	assert.Equal(t, IMAP, DefaultIMAPProtocol(143))
}

func TestParseProtocols(t *testing.T) {
	p, err := ParseSMTPProtocol("smtps")
	assert.NoError(t, err)
	assert.Equal(t, SMTPS, p)

	p, err = ParseSMTPProtocol("starttls")
	assert.NoError(t, err)
	assert.Equal(t, SMTPTLS, p)

	_, err = ParseSMTPProtocol("pop3")
	assert.Error(t, err)

	ip, err := ParseIMAPProtocol(" imap ")
	assert.NoError(t, err)
	assert.Equal(t, IMAP, ip)
}

func TestDescribeAndString(t *testing.T) {
	a := validAccount()
	a.IMAP = &IMAPConfig{Host: "imap.example.com", Port: 993, Protocol: IMAPS, SentFolderPath: "Sent"}

	assert.Equal(t,
		`SMTP smtp.example.com:587 (SMTP_TLS), IMAP imap.example.com:993 (IMAPS) sent folder "Sent"`,
		a.Describe(),
	)
	assert.Equal(t, "Me <me@example.com>", a.String())

	a.Name = a.Email
	assert.Equal(t, "me@example.com", a.String())
}
