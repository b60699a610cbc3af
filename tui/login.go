package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/glasspath/communique/mailable"
	"github.com/glasspath/communique/share"
)

// Login asks for a password, and for an address when there is no account
// yet. It implements share.LoginPrompt.
type Login struct {
	// Default to the terminal
	Input  io.Reader
	Output io.Writer
	// Prompt line by line instead of drawing a form, for screen readers
	Accessible bool
	// Offer to store the password in the keyring
	OfferRemember bool
}

type loginValues struct {
	email    string
	password string
	remember bool
}

func validateEmail(s string) error {
	if mailable.AddressOf(s) == "" {
		return errors.New("enter an email address, e.g., me@example.com")
	}
	return nil
}

func validatePassword(s string) error {
	if s == "" {
		return errors.New("enter a password")
	}
	return nil
}

func (l *Login) form(v *loginValues, askEmail bool) *huh.Form {
	var fields []huh.Field
	if askEmail {
		fields = append(fields, huh.NewInput().
			Title("Email").
			Description("The account settings are looked up for this address").
			Placeholder("me@example.com").
			Value(&v.email).
			Validate(validateEmail))
	}
	title := "Password"
	if !askEmail {
		title = fmt.Sprintf("Password for %v", v.email)
	}
	fields = append(fields, huh.NewInput().
		Title(title).
		EchoMode(huh.EchoModePassword).
		Value(&v.password).
		Validate(validatePassword))
	if l.OfferRemember {
		fields = append(fields, huh.NewConfirm().
			Title("Remember password").
			Description("Kept in the system keyring, or in a file encrypted with a passphrase you choose").
			Affirmative("Yes").
			Negative("No").
			Value(&v.remember))
	}

	f := huh.NewForm(huh.NewGroup(fields...)).WithAccessible(l.Accessible)
	if l.Input != nil {
		f = f.WithInput(l.Input)
	}
	if l.Output != nil {
		f = f.WithOutput(l.Output)
	}
	return f
}

func (v *loginValues) credentials() (share.Credentials, error) {
	if err := validateEmail(v.email); err != nil {
		return share.Credentials{}, err
	}
	if err := validatePassword(v.password); err != nil {
		return share.Credentials{}, err
	}
	return share.Credentials{
		Email:    strings.TrimSpace(v.email),
		Password: v.password,
		Remember: v.remember,
	}, nil
}

// Login shows the form. Aborting it returns share.ErrCancelled.
func (l *Login) Login(ctx context.Context, email string) (share.Credentials, error) {
	v := &loginValues{email: email}
	if err := l.form(v, email == "").RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return share.Credentials{}, share.ErrCancelled
		}
		if ctx.Err() != nil {
			return share.Credentials{}, ctx.Err()
		}
		return share.Credentials{}, fmt.Errorf("login prompt: %w", err)
	}
	return v.credentials()
}
