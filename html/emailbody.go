package html

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	css "github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// CIDPrefix is the URL scheme MIME uses to reference a related body part.
const CIDPrefix = "cid:"

// Template used to wrap fragments, i.e., anything that isn't already a full
// HTML document. Email clients are picky about charsets, so we declare one.
const documentHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{ .Title }}</title>
</head>
<body>
{{ .Content }}
</body>
</html>`

var documentTmpl = htmltemplate.Must(htmltemplate.New("document").Parse(documentHTML))

var fullDocumentRe = regexp.MustCompile(`(?i)<html[\s>]|<!doctype`)

var imgSelector = css.MustCompile("img[src]")

// SourceFunc returns the value to write into the src attribute of an image
// registered under key with the file at path.
type SourceFunc func(key, path string) string

// CIDSource points an image at its MIME body part.
func CIDSource(key, _ string) string {
	return CIDPrefix + key
}

// FileSource points an image at the file on disk, for exported documents
// that are opened in a browser.
func FileSource(_ string, path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// Body is an email body derived from user-authored HTML.
type Body struct {
	// A complete HTML document
	HTML string
	// text/plain rendering of HTML
	Text string
	// Keys of the images the document references, in document order
	ImageKeys []string
}

// NewBody builds a Body whose images point at MIME content IDs. images maps
// image keys to file paths. An img element references an image if its src
// is the key, "cid:<key>", or the image's file path; other images are left
// alone.
func NewBody(src, title string, images map[string]string) (Body, error) {
	return render(src, title, images, CIDSource)
}

// Export builds a standalone HTML document whose images point at files on
// disk.
func Export(src, title string, images map[string]string) (string, error) {
	b, err := render(src, title, images, FileSource)
	if err != nil {
		return "", err
	}
	return b.HTML, nil
}

func render(src, title string, images map[string]string, sf SourceFunc) (Body, error) {
	if !fullDocumentRe.MatchString(src) {
		var buf bytes.Buffer
		err := documentTmpl.Execute(&buf, struct {
			Title   string
			Content htmltemplate.HTML
		}{
			Title:   title,
			Content: htmltemplate.HTML(src),
		})
		if err != nil {
			return Body{}, fmt.Errorf("can't wrap the HTML fragment: %v", err)
		}
		src = buf.String()
	}

	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return Body{}, fmt.Errorf("can't parse the email HTML: %v", err)
	}

	keys := rewriteImages(doc, images, sf)

	var out bytes.Buffer
	if err := html.Render(&out, doc); err != nil {
		return Body{}, fmt.Errorf("can't render the email HTML: %v", err)
	}

	return Body{
		HTML:      out.String(),
		Text:      PlainText(doc),
		ImageKeys: keys,
	}, nil
}

// rewriteImages points every img element that references a known image at
// sf's source and returns the referenced keys without duplicates.
func rewriteImages(doc *html.Node, images map[string]string, sf SourceFunc) []string {
	if len(images) == 0 {
		return nil
	}

	byPath := make(map[string]string, len(images))
	for k, p := range images {
		byPath[p] = k
	}

	seen := make(map[string]struct{})
	var keys []string
	for _, n := range imgSelector.MatchAll(doc) {
		for i, a := range n.Attr {
			if a.Key != "src" {
				continue
			}
			key, ok := imageKey(a.Val, images, byPath)
			if !ok {
				break
			}
			n.Attr[i].Val = sf(key, images[key])
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				keys = append(keys, key)
			}
			break
		}
	}
	return keys
}

func imageKey(src string, images, byPath map[string]string) (string, bool) {
	k := strings.TrimPrefix(src, CIDPrefix)
	if _, ok := images[k]; ok {
		return k, true
	}
	if k, ok := byPath[src]; ok {
		return k, true
	}
	return "", false
}
