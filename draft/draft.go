package draft

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/glasspath/communique/html"
	"github.com/glasspath/communique/mailable"
	yaml "gopkg.in/yaml.v2"
)

// Draft is a message being composed. Paths in HTMLFile, Images and
// Attachments may be relative to the directory of the draft file.
type Draft struct {
	To      string
	Cc      string
	Bcc     string
	Subject string
	// Exactly one of HTML and HTMLFile is set
	HTML     string
	HTMLFile string
	// Image keys mapped to file paths. The HTML refers to an image by its
	// key, e.g., <img src="logo">.
	Images      map[string]string
	Attachments []string

	baseDir string
}

// document is the YAML layout of a Draft
type document struct {
	To          string            `yaml:"to,omitempty"`
	Cc          string            `yaml:"cc,omitempty"`
	Bcc         string            `yaml:"bcc,omitempty"`
	Subject     string            `yaml:"subject,omitempty"`
	HTML        string            `yaml:"html,omitempty"`
	HTMLFile    string            `yaml:"htmlFile,omitempty"`
	Images      map[string]string `yaml:"images,omitempty"`
	Attachments []string          `yaml:"attachments,omitempty"`
}

const newHTML = `<h1>Title</h1>
<p>Write your message here.</p>
`

// New returns a draft to start composing from.
func New() *Draft {
	return &Draft{
		HTML: newHTML,
	}
}

// UnmarshalYAML parses a user-provided draft, returning any parsing or
// validation errors.
func (d *Draft) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var v document
	if err := unmarshal(&v); err != nil {
		return fmt.Errorf("can't parse the draft: %v", err)
	}

	if v.HTML != "" && v.HTMLFile != "" {
		return errors.New("a draft can include either \"html\" or \"htmlFile\", not both")
	}
	if v.HTML == "" && v.HTMLFile == "" {
		return errors.New("a draft must include \"html\" or \"htmlFile\"")
	}

	for k, p := range v.Images {
		if strings.TrimSpace(k) == "" {
			return errors.New("image keys can't be blank")
		}
		if strings.ContainsAny(k, "<> \t") {
			return fmt.Errorf("image key %q can't contain spaces or angle brackets", k)
		}
		if p == "" {
			return fmt.Errorf("image %q has no path", k)
		}
	}
	for _, a := range v.Attachments {
		if a == "" {
			return errors.New("attachment paths can't be blank")
		}
	}

	d.To = v.To
	d.Cc = v.Cc
	d.Bcc = v.Bcc
	d.Subject = v.Subject
	d.HTML = v.HTML
	d.HTMLFile = v.HTMLFile
	d.Images = v.Images
	d.Attachments = v.Attachments
	return nil
}

// MarshalYAML writes d in the layout UnmarshalYAML reads.
func (d *Draft) MarshalYAML() (interface{}, error) {
	return document{
		To:          d.To,
		Cc:          d.Cc,
		Bcc:         d.Bcc,
		Subject:     d.Subject,
		HTML:        d.HTML,
		HTMLFile:    d.HTMLFile,
		Images:      d.Images,
		Attachments: d.Attachments,
	}, nil
}

// Parse reads a draft from r. Relative paths in the draft resolve against
// baseDir.
func Parse(r io.Reader, baseDir string) (*Draft, error) {
	var d Draft
	if err := yaml.NewDecoder(r).Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("the draft is empty")
		}
		return nil, fmt.Errorf("can't read the draft as YAML: %v", err)
	}
	d.baseDir = baseDir
	return &d, nil
}

// Load reads the draft file at path.
func Load(path string) (*Draft, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("can't open the draft: %w", err)
	}
	defer f.Close()

	return Parse(f, filepath.Dir(path))
}

// Save writes d to path, creating parent directories. Relative paths in d
// are kept as they are, so they resolve against the new location.
func (d *Draft) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("can't create the draft directory: %w", err)
	}
	b, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("can't serialize the draft: %v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("can't write the draft: %w", err)
	}
	d.baseDir = filepath.Dir(path)
	return nil
}

// Resolve returns p relative to the draft's directory, unless p is already
// absolute.
func (d *Draft) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || d.baseDir == "" {
		return p
	}
	return filepath.Join(d.baseDir, p)
}

// Source returns the HTML the user wrote, reading HTMLFile if needed.
func (d *Draft) Source() (string, error) {
	if d.HTMLFile == "" {
		return d.HTML, nil
	}
	b, err := os.ReadFile(d.Resolve(d.HTMLFile))
	if err != nil {
		return "", fmt.Errorf("can't read the draft's HTML file: %w", err)
	}
	return string(b), nil
}

func (d *Draft) resolvedImages() map[string]string {
	m := make(map[string]string, len(d.Images))
	for k, p := range d.Images {
		m[k] = d.Resolve(p)
	}
	return m
}

// ToMailable converts d into a message. Only images the HTML refers to
// are embedded.
func (d *Draft) ToMailable() (*mailable.Mailable, error) {
	src, err := d.Source()
	if err != nil {
		return nil, err
	}

	body, err := html.NewBody(src, d.Subject, d.resolvedImages())
	if err != nil {
		return nil, err
	}

	m := &mailable.Mailable{
		To:      mailable.ParseRecipients(d.To),
		Cc:      mailable.ParseRecipients(d.Cc),
		Bcc:     mailable.ParseRecipients(d.Bcc),
		Subject: d.Subject,
		Text:    body.Text,
		HTML:    body.HTML,
	}
	for _, k := range body.ImageKeys {
		m.AddImage(k, d.Resolve(d.Images[k]))
	}
	for _, a := range d.Attachments {
		m.AddAttachment(d.Resolve(a))
	}
	return m, nil
}

// ExportHTML writes a standalone document, with images pointing at files
// on disk, to w.
func (d *Draft) ExportHTML(w io.Writer) error {
	src, err := d.Source()
	if err != nil {
		return err
	}
	doc, err := html.Export(src, d.Subject, d.resolvedImages())
	if err != nil {
		return err
	}
	_, err = io.Copy(w, bytes.NewBufferString(doc))
	return err
}

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

// SuggestedFileName returns a file name (without extension) derived from
// the subject.
func (d *Draft) SuggestedFileName() string {
	s := nonSlugRe.ReplaceAllString(strings.ToLower(d.Subject), "-")
	s = strings.Trim(s, "-")
	if len(s) > 64 {
		s = strings.TrimRight(s[:64], "-")
	}
	if s == "" {
		return "untitled"
	}
	return s
}
