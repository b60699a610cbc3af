package tui

import (
	"fmt"
	"strings"

	"github.com/glasspath/communique/account"
	"github.com/glasspath/communique/share"
)

const (
	selectedMarker = "›"
	timeLayout     = "2006-01-02 15:04"
)

// RenderAccounts lists accounts with their index, marking the selected
// one.
func RenderAccounts(accounts []*account.Account, selected int) string {
	if len(accounts) == 0 {
		return mutedStyle.Render("No accounts. Add one with \"account add\" or \"account find\".") + "\n"
	}
	var b strings.Builder
	for i, a := range accounts {
		marker, style := " ", itemStyle
		if i == selected {
			marker, style = selectedMarker, selectedStyle
		}
		fmt.Fprintf(&b, "%v %v\n", marker, style.Render(fmt.Sprintf("%d  %v", i, a)))
		fmt.Fprintf(&b, "     %v\n", mutedStyle.Render(a.Describe()))
	}
	return b.String()
}

// RenderModes lists the send modes with their numbers, marking the
// default one.
func RenderModes(modes []share.Mode, def share.Mode) string {
	var b strings.Builder
	for _, m := range modes {
		marker, style := " ", itemStyle
		if m == def {
			marker, style = selectedMarker, selectedStyle
		}
		line := fmt.Sprintf("%3d  %-16v %v", int(m), m, m.Description())
		if !m.Supported() {
			line += " (not supported)"
			style = mutedStyle
		}
		fmt.Fprintf(&b, "%v %v\n", marker, style.Render(line))
	}
	return b.String()
}

// RenderHistory lists history records in the order given.
func RenderHistory(records []share.Record) string {
	if len(records) == 0 {
		return mutedStyle.Render("Nothing has been shared yet.") + "\n"
	}
	var b strings.Builder
	for _, r := range records {
		subject := r.Subject
		if subject == "" {
			subject = "(no subject)"
		}
		fmt.Fprintf(&b, "%v  %-12v %v\n",
			mutedStyle.Render(r.Time.Local().Format(timeLayout)),
			r.Mode,
			selectedStyle.Render(subject),
		)
		if len(r.Recipients) > 0 {
			fmt.Fprintf(&b, "     to %v\n", strings.Join(r.Recipients, ", "))
		}
	}
	return b.String()
}
