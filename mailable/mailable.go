package mailable

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"regexp"
	"strings"

	"github.com/docker/go-units"
)

// ErrNoRecipients is returned by Validate when To, Cc and Bcc are all empty.
var ErrNoRecipients = errors.New("the email has no recipients")

// Mailable is an email ready to hand off to a sender. Images maps a
// content ID to a file path; the HTML body references each image as
// "cid:<content ID>".
type Mailable struct {
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Text        string
	HTML        string
	Attachments []string
	Images      map[string]string
}

// AddAttachment appends the file at path to the list of attachments.
func (m *Mailable) AddAttachment(path string) {
	m.Attachments = append(m.Attachments, path)
}

// AddImage registers an inline image under key.
func (m *Mailable) AddImage(key, path string) {
	if m.Images == nil {
		m.Images = make(map[string]string)
	}
	m.Images[key] = path
}

// Recipients returns the bare addresses of To, Cc and Bcc in that order,
// without duplicates. Entries that don't parse as addresses are skipped.
func (m *Mailable) Recipients() []string {
	seen := make(map[string]struct{})
	var r []string
	for _, list := range [][]string{m.To, m.Cc, m.Bcc} {
		for _, s := range list {
			a := AddressOf(s)
			if a == "" {
				continue
			}
			k := strings.ToLower(a)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			r = append(r, a)
		}
	}
	return r
}

// Validate checks that m can be sent: it needs at least one recipient, and
// every attachment and image must be a readable regular file. When
// maxAttachmentBytes is positive, the combined size of attachments and
// images may not exceed it.
func (m *Mailable) Validate(maxAttachmentBytes int64) error {
	if len(m.Recipients()) == 0 {
		return ErrNoRecipients
	}

	var total int64
	check := func(kind, path string) error {
		fi, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("can't read %v %q: %w", kind, path, err)
		}
		if !fi.Mode().IsRegular() {
			return fmt.Errorf("%v %q is not a regular file", kind, path)
		}
		total += fi.Size()
		return nil
	}

	for _, a := range m.Attachments {
		if err := check("attachment", a); err != nil {
			return err
		}
	}
	for k, p := range m.Images {
		if err := check("image "+k, p); err != nil {
			return err
		}
	}

	if maxAttachmentBytes > 0 && total > maxAttachmentBytes {
		return fmt.Errorf(
			"attachments add up to %v, more than the %v limit",
			units.HumanSize(float64(total)),
			units.HumanSize(float64(maxAttachmentBytes)),
		)
	}
	return nil
}

var (
	listSeparatorRe = regexp.MustCompile(`[,;]+`)
	spaceRe         = regexp.MustCompile(`\s+`)
)

// formatRecipient returns the recipient in s as ParseRecipients lists it.
func formatRecipient(s string) (string, bool) {
	a, err := mail.ParseAddress(s)
	if err != nil {
		return "", false
	}
	if a.Name == "" {
		return a.Address, true
	}
	return a.String(), true
}

// splitOnSpace splits a chunk without commas or semicolons into
// recipients. Runs of words ending in `>` are tried as `Name <addr>`,
// longest first, before a word is taken on its own.
func splitOnSpace(chunk string) []string {
	words := spaceRe.Split(strings.TrimSpace(chunk), -1)
	var r []string
	for i := 0; i < len(words); {
		if words[i] == "" {
			i++
			continue
		}
		next := i + 1
		entry := words[i]
		for j := len(words) - 1; j > i; j-- {
			if !strings.HasSuffix(words[j], ">") {
				continue
			}
			if a, ok := formatRecipient(strings.Join(words[i:j+1], " ")); ok {
				entry, next = a, j+1
				break
			}
		}
		if next == i+1 {
			if a, ok := formatRecipient(entry); ok {
				entry = a
			}
		}
		r = append(r, entry)
		i = next
	}
	return r
}

// ParseRecipients splits a recipient field the way a user types it into an
// address bar: entries are separated by commas, semicolons or whitespace.
// Entries of the form `Name <addr>` are kept whole when they parse.
func ParseRecipients(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	// The happy path: a well-formed RFC 5322 list, possibly with quoted
	// display names containing commas.
	if l, err := mail.ParseAddressList(strings.ReplaceAll(s, ";", ",")); err == nil {
		r := make([]string, 0, len(l))
		for _, a := range l {
			if a.Name == "" {
				r = append(r, a.Address)
				continue
			}
			r = append(r, a.String())
		}
		return r
	}

	var r []string
	for _, chunk := range listSeparatorRe.Split(s, -1) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		if a, ok := formatRecipient(chunk); ok {
			r = append(r, a)
			continue
		}
		r = append(r, splitOnSpace(chunk)...)
	}
	return r
}

// AddressOf returns the bare address in s, which may be `Name <addr>` or a
// plain address. It returns an empty string if s is not an address.
func AddressOf(s string) string {
	a, err := mail.ParseAddress(strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	return a.Address
}

// Domain returns the lowercased domain of an address, or an empty string.
func Domain(addr string) string {
	a := AddressOf(addr)
	i := strings.LastIndex(a, "@")
	if i < 0 || i == len(a)-1 {
		return ""
	}
	return strings.ToLower(a[i+1:])
}
