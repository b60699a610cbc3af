package smtptest

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	// Registers the usual charsets with go-message
	_ "github.com/emersion/go-message/charset"
)

// Part is a decoded leaf of a MIME message.
type Part struct {
	// Content types of the enclosing multipart entities, outermost first
	Parents     []string
	ContentType string
	Disposition string
	Filename    string
	ContentID   string
	// Decoded body
	Body string
}

// ParseParts reads a raw message and returns its header and leaf parts in
// order. Transfer encodings are decoded. If a test that calls this is
// failing, check that the message is valid MIME first.
func ParseParts(raw string) (message.Header, []Part, error) {
	e, err := message.Read(strings.NewReader(raw))
	if err != nil {
		return message.Header{}, nil, fmt.Errorf("can't parse the message: %v", err)
	}

	var parts []Part
	var walk func(e *message.Entity, parents []string) error
	walk = func(e *message.Entity, parents []string) error {
		t, _, err := e.Header.ContentType()
		if err != nil {
			t = "text/plain"
		}
		if mr := e.MultipartReader(); mr != nil {
			for {
				p, err := mr.NextPart()
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}
				if err := walk(p, append(append([]string(nil), parents...), t)); err != nil {
					return err
				}
			}
		}

		b, err := io.ReadAll(e.Body)
		if err != nil {
			return err
		}
		p := Part{
			Parents:     parents,
			ContentType: t,
			ContentID:   strings.Trim(e.Header.Get("Content-Id"), "<>"),
			Body:        string(b),
		}
		if d, params, err := e.Header.ContentDisposition(); err == nil {
			p.Disposition = d
			p.Filename = params["filename"]
		}
		parts = append(parts, p)
		return nil
	}

	if err := walk(e, nil); err != nil {
		return message.Header{}, nil, fmt.Errorf("can't walk the message: %v", err)
	}
	return e.Header, parts, nil
}
