package share

import (
	"net/url"
	"strings"

	"github.com/glasspath/communique/mailable"
)

const (
	gmailComposeURL       = "https://mail.google.com/mail/?view=cm&fs=1"
	outlookLiveComposeURL = "https://outlook.live.com/mail/0/deeplink/compose"
	outlookComposeURL     = "https://outlook.office.com/mail/deeplink/compose"
)

// escape is url.QueryEscape with spaces as %20, which mail clients and
// web compose pages decode, unlike "+".
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// addresses joins the bare addresses of l with commas. Entries that don't
// parse are dropped.
func addresses(l []string) string {
	a := make([]string, 0, len(l))
	for _, s := range l {
		if addr := mailable.AddressOf(s); addr != "" {
			a = append(a, addr)
		}
	}
	return strings.Join(a, ",")
}

type param struct {
	key, value string
}

func query(params []param, skipEmpty bool) string {
	var b strings.Builder
	for _, p := range params {
		if skipEmpty && p.value == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(escape(p.value))
	}
	return b.String()
}

// MailtoURI returns an RFC 6068 mailto: link for m. Empty fields are left
// out. The body is the plain text rendering since mailto links can't
// carry HTML.
func MailtoURI(m *mailable.Mailable) string {
	to := strings.Split(addresses(m.To), ",")
	for i, a := range to {
		to[i] = strings.ReplaceAll(escape(a), "%40", "@")
	}

	u := "mailto:" + strings.Join(to, ",")
	q := query([]param{
		{"cc", addresses(m.Cc)},
		{"bcc", addresses(m.Bcc)},
		{"subject", m.Subject},
		{"body", m.Text},
	}, true)
	if q != "" {
		u += "?" + q
	}
	return u
}

// GmailComposeURI opens the Gmail compose window filled in with m.
func GmailComposeURI(m *mailable.Mailable) string {
	return gmailComposeURL + "&" + query([]param{
		{"to", addresses(m.To)},
		{"cc", addresses(m.Cc)},
		{"bcc", addresses(m.Bcc)},
		{"su", m.Subject},
		{"body", m.Text},
	}, false)
}

func outlookQuery(m *mailable.Mailable) string {
	return query([]param{
		{"to", addresses(m.To)},
		{"cc", addresses(m.Cc)},
		{"bcc", addresses(m.Bcc)},
		{"subject", m.Subject},
		{"body", m.Text},
	}, false)
}

// OutlookLiveComposeURI opens the Outlook.com compose window.
func OutlookLiveComposeURI(m *mailable.Mailable) string {
	return outlookLiveComposeURL + "?" + outlookQuery(m)
}

// OutlookComposeURI opens the Outlook on the web (Microsoft 365) compose
// window.
func OutlookComposeURI(m *mailable.Mailable) string {
	return outlookComposeURL + "?" + outlookQuery(m)
}
