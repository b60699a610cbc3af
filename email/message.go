package email

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/glasspath/communique/mailable"
)

// partCreator starts a body part with the given header.
type partCreator func(h message.Header) (*message.Writer, error)

// Options adjust the headers of a built message.
type Options struct {
	// Mark the message as a draft, which makes desktop clients open it
	// in a compose window
	Unsent bool
	// Defaults to time.Now
	Date time.Time
}

// Build returns m as a MIME message. from may be nil, e.g., for drafts
// handed to a desktop client that fills in the sender. Bcc recipients are
// never written to the headers.
func Build(m *mailable.Mailable, from *mail.Address) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, m, from, Options{}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write writes m to w as a MIME message. The tree is:
//
//	multipart/mixed          (only with attachments)
//	  multipart/related      (only with inline images)
//	    multipart/alternative
//	      text/plain
//	      text/html
//	    image parts
//	  attachment parts
func Write(w io.Writer, m *mailable.Mailable, from *mail.Address, opts Options) error {
	var h mail.Header
	date := opts.Date
	if date.IsZero() {
		date = time.Now()
	}
	h.SetDate(date)
	if from != nil {
		h.SetAddressList("From", []*mail.Address{from})
	}
	for _, f := range []struct {
		key   string
		addrs []string
	}{
		{"To", m.To},
		{"Cc", m.Cc},
	} {
		l, err := addressList(f.addrs)
		if err != nil {
			return fmt.Errorf("can't use the %v addresses: %w", f.key, err)
		}
		if len(l) > 0 {
			h.SetAddressList(f.key, l)
		}
	}
	h.SetSubject(m.Subject)
	if err := generateMessageID(&h, from); err != nil {
		return fmt.Errorf("can't generate a message ID: %w", err)
	}
	if opts.Unsent {
		h.Set("X-Unsent", "1")
	}

	top := func(part message.Header) (*message.Writer, error) {
		t, params, err := part.ContentType()
		if err != nil {
			return nil, err
		}
		h.SetContentType(t, params)
		return message.CreateWriter(w, h.Header)
	}

	if len(m.Attachments) == 0 {
		return writeBody(top, m)
	}

	var mh message.Header
	mh.SetContentType("multipart/mixed", nil)
	mw, err := top(mh)
	if err != nil {
		return err
	}
	if err := writeBody(mw.CreatePart, m); err != nil {
		return err
	}
	for _, a := range m.Attachments {
		if err := writeFile(mw, a, "attachment", ""); err != nil {
			return err
		}
	}
	return mw.Close()
}

// generateMessageID uses the sender's domain, since local hostnames are
// rarely fully qualified.
func generateMessageID(h *mail.Header, from *mail.Address) error {
	if from != nil {
		if d := mailable.Domain(from.Address); d != "" {
			return h.GenerateMessageIDWithHostname(d)
		}
	}
	return h.GenerateMessageID()
}

func addressList(addrs []string) ([]*mail.Address, error) {
	l := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		pa, err := mail.ParseAddress(a)
		if err != nil {
			return nil, fmt.Errorf("%q is not an email address: %w", a, err)
		}
		l = append(l, pa)
	}
	return l, nil
}

func writeBody(create partCreator, m *mailable.Mailable) error {
	if len(m.Images) == 0 {
		return writeAlternative(create, m)
	}

	var h message.Header
	h.SetContentType("multipart/related", map[string]string{"type": "multipart/alternative"})
	rw, err := create(h)
	if err != nil {
		return err
	}
	if err := writeAlternative(rw.CreatePart, m); err != nil {
		return err
	}

	keys := make([]string, 0, len(m.Images))
	for k := range m.Images {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := writeFile(rw, m.Images[k], "inline", k); err != nil {
			return err
		}
	}
	return rw.Close()
}

func writeAlternative(create partCreator, m *mailable.Mailable) error {
	var h message.Header
	h.SetContentType("multipart/alternative", nil)
	aw, err := create(h)
	if err != nil {
		return err
	}
	if err := writeText(aw, "text/plain", m.Text); err != nil {
		return err
	}
	if err := writeText(aw, "text/html", m.HTML); err != nil {
		return err
	}
	return aw.Close()
}

func writeText(mw *message.Writer, contentType, s string) error {
	var h message.Header
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	pw, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(pw, s); err != nil {
		return err
	}
	return pw.Close()
}

// contentTypeOf guesses a MIME type from the file extension.
func contentTypeOf(path string) string {
	t := mime.TypeByExtension(filepath.Ext(path))
	if t == "" {
		return "application/octet-stream"
	}
	mt, _, err := mime.ParseMediaType(t)
	if err != nil {
		return "application/octet-stream"
	}
	return mt
}

// writeFile adds the file at path as a base64 part. A non-empty cid makes
// it referable from the HTML part as cid:<cid>.
func writeFile(mw *message.Writer, path, disposition, cid string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("can't open %v: %w", path, err)
	}
	defer f.Close()

	name := filepath.Base(path)
	var h message.Header
	h.SetContentType(contentTypeOf(path), map[string]string{"name": name})
	h.SetContentDisposition(disposition, map[string]string{"filename": name})
	h.Set("Content-Transfer-Encoding", "base64")
	if cid != "" {
		h.Set("Content-ID", "<"+cid+">")
	}

	pw, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(pw, f); err != nil {
		return fmt.Errorf("can't read %v: %w", path, err)
	}
	return pw.Close()
}

// ExportEml writes m to path as an unsent message that desktop clients
// open for editing.
func ExportEml(m *mailable.Mailable, from *mail.Address, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("can't create the directory for %v: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("can't create %v: %w", path, err)
	}
	if err := Write(f, m, from, Options{Unsent: true}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// MessageID returns the Message-ID of a built message, without the angle
// brackets.
func MessageID(msg []byte) (string, error) {
	e, err := message.Read(bytes.NewReader(msg))
	if err != nil && !message.IsUnknownCharset(err) {
		return "", fmt.Errorf("can't read the message header: %w", err)
	}
	h := mail.Header{Header: e.Header}
	return h.MessageID()
}
