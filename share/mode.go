package share

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode is a send mode. The numbers are persisted in preferences and
// passed by host applications, so they never change.
type Mode int

const (
	Unknown                          Mode = 0
	SMTP                             Mode = 1
	EML                              Mode = 2
	Mailto                           Mode = 3
	GlasspathSync                    Mode = 10
	WindowsMAPI                      Mode = 20
	WindowsUWPShareMenu              Mode = 21
	WindowsOutlookClassicObjectModel Mode = 30
	WindowsOutlookClassicCommandLine Mode = 31
	MacAppKitSharingService          Mode = 40
	ThunderbirdCommandLine           Mode = 50
	GmailCompose                     Mode = 60
	OutlookLiveCompose               Mode = 61
	OutlookCompose                   Mode = 70
)

type modeInfo struct {
	name        string
	aliases     []string
	description string
	supported   bool
}

var modes = map[Mode]modeInfo{
	Unknown:                          {"unknown", nil, "Do nothing", true},
	SMTP:                             {"smtp", nil, "Send directly over SMTP", true},
	EML:                              {"eml", nil, "Open as .eml in the default mail client", true},
	Mailto:                           {"mailto", nil, "Open a mailto: link", true},
	GlasspathSync:                    {"glasspath-sync", []string{"sync"}, "Glasspath Sync", false},
	WindowsMAPI:                      {"mapi", nil, "Windows MAPI", false},
	WindowsUWPShareMenu:              {"uwp-share-menu", []string{"uwp"}, "Windows share menu", false},
	WindowsOutlookClassicObjectModel: {"outlook-com", nil, "Outlook Classic object model", false},
	WindowsOutlookClassicCommandLine: {"outlook-classic", []string{"outlook-cli"}, "Outlook Classic command line", true},
	MacAppKitSharingService:          {"appkit", nil, "macOS sharing service", false},
	ThunderbirdCommandLine:           {"thunderbird", nil, "Thunderbird command line", true},
	GmailCompose:                     {"gmail", nil, "Gmail compose page", true},
	OutlookLiveCompose:               {"outlook-live", nil, "Outlook.com compose page", true},
	OutlookCompose:                   {"outlook", []string{"outlook-web"}, "Outlook on the web compose page", true},
}

// Modes returns every known mode in numeric order.
func Modes() []Mode {
	return []Mode{
		Unknown, SMTP, EML, Mailto, GlasspathSync, WindowsMAPI,
		WindowsUWPShareMenu, WindowsOutlookClassicObjectModel,
		WindowsOutlookClassicCommandLine, MacAppKitSharingService,
		ThunderbirdCommandLine, GmailCompose, OutlookLiveCompose,
		OutlookCompose,
	}
}

func (m Mode) String() string {
	if i, ok := modes[m]; ok {
		return i.name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Description is a human readable name for listings.
func (m Mode) Description() string {
	return modes[m].description
}

// Supported reports whether the dispatcher can carry out m. The modes that
// need operating system automation are known but not supported.
func (m Mode) Supported() bool {
	return modes[m].supported
}

// ParseMode accepts a mode name, one of its aliases, or its number.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if _, ok := modes[Mode(n)]; ok {
			return Mode(n), nil
		}
		return Unknown, fmt.Errorf("unknown send mode %v", n)
	}
	s = strings.ReplaceAll(s, "_", "-")
	for m, i := range modes {
		if i.name == s {
			return m, nil
		}
		for _, a := range i.aliases {
			if a == s {
				return m, nil
			}
		}
	}
	return Unknown, fmt.Errorf("unknown send mode %q", s)
}
