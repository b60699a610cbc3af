package e2e

import (
	"bytes"
	"fmt"
	"os"
	"text/template"
)

// draftOptions is used to fill in a draft template with details unique to a
// specific test. Keep this as small as possible so the input remains as
// close to a "real" draft as we can make it.
//
// Fields are exported so we can use them in templates.
type draftOptions struct {
	To          string
	Subject     string
	Image       string
	Attachments []string
}

const draftTemplate = `---
{{- if .To }}
to: {{ .To }}
{{- end }}
subject: {{ .Subject }}
html: |
  <h1>{{ .Subject }}</h1>
  <p>See the chart below.</p>
  {{- if .Image }}
  <img src="chart">
  {{- end }}
{{- if .Image }}
images:
  chart: {{ .Image }}
{{- end }}
{{- if .Attachments }}
attachments:
{{- range .Attachments }}
  - {{ . }}
{{- end }}
{{- end }}
`

// relayOptions describe the SMTP relay of a --relay file.
type relayOptions struct {
	RelayAddress string
	Password     string
}

const relayTemplate = `---
email:
  smtpServerAddress: {{ .RelayAddress }}
  fromAddress: reports@example.com
  toAddress: team@example.com
  username: reports
  password: {{ .Password }}
  skipCertVerification: "true"
  timeout: 10s
`

// writeTemplate fills in tmpl with opts and writes the result to path.
func writeTemplate(path, tmpl string, opts interface{}) error {
	t, err := template.New("conf").Parse(tmpl)

	// This means the template string was written incorrectly. Not
	// an issue with the application itself.
	if err != nil {
		return fmt.Errorf("couldn't parse the template: %v", err)
	}

	var b bytes.Buffer
	if err := t.Execute(&b, opts); err != nil {
		return fmt.Errorf("couldn't populate the template: %v", err)
	}

	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		return fmt.Errorf("couldn't write %v: %v", path, err)
	}
	return nil
}
