package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/glasspath/communique/credential"
	"github.com/glasspath/communique/email"
	"github.com/glasspath/communique/finder"
	"github.com/glasspath/communique/mailbox"
	"github.com/glasspath/communique/share"
	"github.com/glasspath/communique/storage"
	"github.com/glasspath/communique/tui"
	"github.com/glasspath/communique/userconfig"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// app holds what the commands share. The interfaces default to the real
// implementations and are replaced in tests.
type app struct {
	configPath string
	prefsPath  string
	level      string
	logPath    string
	// Prompt line by line instead of drawing forms
	accessible bool

	conf  *userconfig.Configuration
	prefs *userconfig.Preferences

	launcher  share.Launcher
	passwords credential.Store
	login     share.LoginPrompt
	finder    share.AccountFinder
	smtp      share.MessageSender
	imap      share.SentFolderSaver
	history   storage.KeyValue

	closers []io.Closer
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		log.Error().Err(err).Msg("communique failed")
		stop()
		os.Exit(1)
	}
}

// Run executes the command line given by args with the default
// implementations of every prompt, sender, and store.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	// PersistentPostRunE is skipped when a command fails
	if cerr := a.teardown(); cerr != nil {
		log.Warn().Err(cerr).Msg("shutting down")
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "communique",
		Short: "Compose HTML email and share it through SMTP, desktop clients, or web mail",
		Long: `Communique turns a draft file (YAML with recipients, a subject, an HTML
body, inline images, and attachments) into an email and hands it to the
send mode of your choice: SMTP, an .eml file, a mailto: link, Thunderbird,
Outlook, or the Gmail and Outlook web compose pages.

Accounts are kept in ~/.communique/configuration.xml. When you send over
SMTP without an account, the account finder looks up the server settings
for your address.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", userconfig.DefaultConfigPath(), "path to the account configuration (XML)")
	f.StringVar(&a.prefsPath, "preferences", userconfig.DefaultPreferencesPath(), "path to the preferences (YAML)")
	f.StringVar(&a.level, "level", "", `log level: "info", "debug", "warn", or "error" (default from preferences)`)
	f.StringVar(&a.logPath, "log-file", filepath.Join(userconfig.DefaultDir(), "log.txt"), `file to append logs to, "" to disable`)
	f.BoolVar(&a.accessible, "accessible", false, "prompt line by line instead of drawing forms")

	root.AddCommand(
		newSendCmd(a),
		newExportCmd(a),
		newDraftCmd(a),
		newAccountCmd(a),
		newModesCmd(a),
		newHistoryCmd(a),
	)
	return root
}

func (a *app) setup(stderr io.Writer) error {
	prefs, err := userconfig.LoadPreferences(a.prefsPath)
	if err != nil {
		return err
	}
	a.prefs = prefs

	level := a.level
	if level == "" {
		level = prefs.LogLevel
	}
	c, err := setupLogging(level, a.logPath, stderr)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, c)

	log.Debug().
		Str("config", a.configPath).
		Str("preferences", a.prefsPath).
		Msg("starting")
	a.conf = userconfig.Load(a.configPath)
	return nil
}

func (a *app) teardown() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

func (a *app) saveConfig() error {
	if err := a.conf.Save(a.configPath); err != nil {
		return err
	}
	log.Info().Str("path", a.configPath).Msg("saved the configuration")
	return nil
}

func (a *app) passwordStore() credential.Store {
	if a.passwords == nil {
		k, err := credential.Open(userconfig.DefaultDir())
		if err != nil {
			log.Warn().Err(err).Msg("no keyring, passwords won't be remembered")
			return nil
		}
		a.passwords = k
	}
	return a.passwords
}

func (a *app) loginPrompt(out io.Writer) share.LoginPrompt {
	if a.login == nil {
		a.login = &tui.Login{
			Output:        out,
			Accessible:    a.accessible,
			OfferRemember: a.passwordStore() != nil,
		}
	}
	return a.login
}

func (a *app) smtpSender() share.MessageSender {
	if a.smtp == nil {
		a.smtp = &email.Sender{}
	}
	return a.smtp
}

func (a *app) sentFolderSaver() share.SentFolderSaver {
	if a.imap == nil {
		a.imap = &mailbox.Client{}
	}
	return a.imap
}

func (a *app) accountFinder(out io.Writer) share.AccountFinder {
	if a.finder == nil {
		f := &finder.Finder{
			SMTP:        &email.Sender{},
			IMAP:        &mailbox.Client{},
			Timeout:     a.conf.TimeoutDuration(),
			Concurrency: 3,
		}
		if a.accessible {
			f.Progress = func(line string) { fmt.Fprintln(out, line) }
			a.finder = f
		} else {
			a.finder = &tui.FinderConsole{Finder: f, Output: out}
		}
	}
	return a.finder
}

// historyStore opens the history database. When it can't be opened, e.g.,
// because another process holds it, history is skipped.
func (a *app) historyStore() storage.KeyValue {
	if a.history != nil {
		return a.history
	}
	db, err := storage.NewBadgerDB(&storage.KVConfig{
		StorageDirPath: a.prefs.HistoryDir,
		KeyTTLDuration: a.prefs.HistoryTTL,
	})
	if err != nil {
		log.Warn().Err(err).Str("dir", a.prefs.HistoryDir).Msg("can't open the history, nothing will be recorded")
		a.history = &storage.NoOpDB{}
		return a.history
	}
	if err := db.Cleanup(); err != nil {
		log.Debug().Err(err).Msg("history cleanup")
	}
	a.history = db
	a.closers = append(a.closers, db)
	return a.history
}

func (a *app) desktop() share.Launcher {
	if a.launcher == nil {
		a.launcher = share.Desktop{}
	}
	return a.launcher
}

func (a *app) dispatcher(out io.Writer) *share.Dispatcher {
	return &share.Dispatcher{
		Config:      a.conf,
		ConfigPath:  a.configPath,
		Preferences: a.prefs,
		Passwords:   a.passwordStore(),
		Login:       a.loginPrompt(out),
		Finder:      a.accountFinder(out),
		SMTP:        a.smtpSender(),
		IMAP:        a.sentFolderSaver(),
		Launcher:    a.desktop(),
		History:     share.NewHistory(a.historyStore()),
		OnSent: func(r share.Record) {
			fmt.Fprintf(out, "Sent %q to %v recipient(s)\n", r.Subject, len(r.Recipients))
		},
	}
}
