package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glasspath/communique/draft"
	"github.com/glasspath/communique/email"
	"github.com/glasspath/communique/share"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v2"
)

// overrides are draft fields given on the command line.
type overrides struct {
	to, cc, bcc, subject string
	attachments          []string
}

func (o *overrides) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.to, "to", "", "recipients, replacing the draft's")
	f.StringVar(&o.cc, "cc", "", "Cc recipients, replacing the draft's")
	f.StringVar(&o.bcc, "bcc", "", "Bcc recipients, replacing the draft's")
	f.StringVar(&o.subject, "subject", "", "subject, replacing the draft's")
	f.StringSliceVar(&o.attachments, "attach", nil, "files to attach in addition to the draft's")
}

func (o *overrides) apply(cmd *cobra.Command, d *draft.Draft) {
	f := cmd.Flags()
	if f.Changed("to") {
		d.To = o.to
	}
	if f.Changed("cc") {
		d.Cc = o.cc
	}
	if f.Changed("bcc") {
		d.Bcc = o.bcc
	}
	if f.Changed("subject") {
		d.Subject = o.subject
	}
	for _, a := range o.attachments {
		if abs, err := filepath.Abs(a); err == nil {
			a = abs
		}
		d.Attachments = append(d.Attachments, a)
	}
}

// loadDraft reads the draft named in args or, when there is none and the
// preferences allow it, the last opened draft.
func (a *app) loadDraft(args []string) (*draft.Draft, string, error) {
	path := ""
	if len(args) > 0 {
		path = args[0]
	} else if a.prefs.OpenLastFileAtStartup && a.prefs.LastOpenedFile != "" {
		path = a.prefs.LastOpenedFile
		log.Info().Str("draft", path).Msg("using the last opened draft")
	}
	if path == "" {
		return nil, "", errors.New("no draft given")
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	d, err := draft.Load(path)
	if err != nil {
		return nil, "", err
	}
	return d, path, nil
}

// rememberDraft records path as the last opened draft.
func (a *app) rememberDraft(path string) {
	if a.prefs.LastOpenedFile == path {
		return
	}
	a.prefs.LastOpenedFile = path
	if err := a.prefs.Save(); err != nil {
		log.Warn().Err(err).Str("path", a.prefs.Path()).Msg("can't save the preferences")
	}
}

// relayFile is the layout of a --relay file.
type relayFile struct {
	Email email.UserConfig `yaml:"email"`
}

func loadRelay(path string) (*email.UserConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read the relay configuration: %w", err)
	}
	var rf relayFile
	if err := yaml.Unmarshal(b, &rf); err != nil {
		return nil, err
	}
	c, err := rf.Email.CheckAndSetDefaults()
	if err != nil {
		return nil, fmt.Errorf("invalid relay configuration: %w", err)
	}
	return &c, nil
}

func newSendCmd(a *app) *cobra.Command {
	var (
		o     overrides
		mode  string
		relay string
	)
	cmd := &cobra.Command{
		Use:   "send [draft]",
		Short: "Send a draft through a send mode",
		Long: `Builds the email described by a draft and hands it to a send mode.
Without a draft, the last opened one is used. Run "communique modes" for the
list of send modes. With --relay, the email goes through the SMTP relay
described in a YAML file instead, without prompts.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, path, err := a.loadDraft(args)
			if err != nil {
				return err
			}
			o.apply(cmd, d)
			m, err := d.ToMailable()
			if err != nil {
				return err
			}
			a.rememberDraft(path)

			if relay != "" {
				uc, err := loadRelay(relay)
				if err != nil {
					return err
				}
				if err := uc.Send(cmd.Context(), m); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sent %q through %v:%v\n", m.Subject, uc.SMTPServerHost, uc.SMTPServerPort)
				return nil
			}

			if mode == "" {
				mode = a.prefs.DefaultSendMode
			}
			sm, err := share.ParseMode(mode)
			if err != nil {
				return err
			}
			if err := a.dispatcher(cmd.OutOrStdout()).Send(cmd.Context(), sm, m); err != nil {
				return err
			}
			log.Info().Str("mode", sm.String()).Str("draft", path).Msg("shared")
			return nil
		},
	}
	o.register(cmd)
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "send mode name or number (default from preferences)")
	cmd.Flags().StringVar(&relay, "relay", "", "YAML file describing an SMTP relay to send through")
	return cmd
}
