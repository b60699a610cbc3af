package share

import (
	"fmt"
	"os/exec"

	"github.com/pkg/browser"
	"github.com/rs/zerolog/log"
)

// Launcher hands work to the desktop.
type Launcher interface {
	// Open a file with its default application
	OpenFile(path string) error
	// Open a URL, including mailto: links, with its default handler
	OpenURL(url string) error
	// Start a program without waiting for it to exit
	Start(c Command) error
}

// Desktop is the Launcher used outside tests.
type Desktop struct{}

func (Desktop) OpenFile(path string) error {
	return browser.OpenFile(path)
}

func (Desktop) OpenURL(url string) error {
	return browser.OpenURL(url)
}

func (Desktop) Start(c Command) error {
	p, err := exec.LookPath(c.Path)
	if err != nil {
		return fmt.Errorf("%v was not found: %w", c.Path, err)
	}
	cmd := exec.Command(p, c.Args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("can't start %v: %w", c.Path, err)
	}
	// Mail clients outlive us; reap them if they exit first.
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Debug().Str("command", c.Path).Err(err).Msg("mail client exited")
		}
	}()
	return nil
}
