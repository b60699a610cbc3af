package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/glasspath/communique/account"
	"github.com/glasspath/communique/credential"
	"github.com/glasspath/communique/mailable"
	"github.com/glasspath/communique/tui"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not an account number, see \"account list\"", s)
	}
	return i, nil
}

func newAccountCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage sender accounts",
	}
	cmd.AddCommand(
		newAccountListCmd(a),
		newAccountShowCmd(a),
		newAccountAddCmd(a),
		newAccountFindCmd(a),
		newAccountRemoveCmd(a),
		newAccountSelectCmd(a),
	)
	return cmd
}

func newAccountListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts, marking the selected one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), tui.RenderAccounts(a.conf.Accounts, a.conf.SelectedAccount))
			return nil
		},
	}
}

func newAccountShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the selected account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			acct := a.conf.Account()
			if acct == nil {
				return errors.New("no account is configured")
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:  %v\n", acct.Name)
			fmt.Fprintf(out, "Email: %v\n", acct.Email)
			if s := acct.SMTP; s != nil {
				fmt.Fprintf(out, "SMTP:  %v:%v (%v)\n", s.Host, s.Port, s.Protocol)
			}
			if i := acct.IMAP; i != nil {
				fmt.Fprintf(out, "IMAP:  %v:%v (%v)\n", i.Host, i.Port, i.Protocol)
				fmt.Fprintf(out, "Sent:  %v\n", i.SentFolderPath)
			}
			fmt.Fprintf(out, "Timeout: %v\n", a.conf.TimeoutDuration())
			return nil
		},
	}
}

func newAccountAddCmd(a *app) *cobra.Command {
	var (
		acct                       account.Account
		smtpConf                   account.SMTPConfig
		imapConf                   account.IMAPConfig
		smtpProtocol, imapProtocol string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an account with known server settings and select it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if acct.Name == "" {
				acct.Name = acct.Email
			}

			smtpConf.Protocol = account.DefaultSMTPProtocol(smtpConf.Port)
			if smtpProtocol != "" {
				p, err := account.ParseSMTPProtocol(smtpProtocol)
				if err != nil {
					return err
				}
				smtpConf.Protocol = p
			}
			acct.SMTP = &smtpConf

			if imapConf.Host != "" {
				imapConf.Protocol = account.DefaultIMAPProtocol(imapConf.Port)
				if imapProtocol != "" {
					p, err := account.ParseIMAPProtocol(imapProtocol)
					if err != nil {
						return err
					}
					imapConf.Protocol = p
				}
				acct.IMAP = &imapConf
			}

			if err := acct.Validate(); err != nil {
				return err
			}
			if i := a.conf.FindAccount(acct.Email); i >= 0 {
				return fmt.Errorf("%v is already account %v", acct.Email, i)
			}
			a.conf.AddAccount(&acct)
			if err := a.saveConfig(); err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), tui.RenderAccounts(a.conf.Accounts, a.conf.SelectedAccount))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&acct.Email, "email", "", "email address")
	f.StringVar(&acct.Name, "name", "", "display name (default: the address)")
	f.StringVar(&smtpConf.Host, "smtp-host", "", "SMTP server host")
	f.IntVar(&smtpConf.Port, "smtp-port", 587, "SMTP server port")
	f.StringVar(&smtpProtocol, "smtp-protocol", "", "SMTP, SMTPS, or SMTP_TLS (default from the port)")
	f.StringVar(&imapConf.Host, "imap-host", "", "IMAP server host, to keep copies of sent email")
	f.IntVar(&imapConf.Port, "imap-port", 993, "IMAP server port")
	f.StringVar(&imapProtocol, "imap-protocol", "", "IMAP or IMAPS (default from the port)")
	f.StringVar(&imapConf.SentFolderPath, "sent-folder", "Sent", "IMAP folder for sent email")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("smtp-host")
	return cmd
}

func newAccountFindCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "find <email>",
		Short: "Look up the server settings of an address and add the account",
		Long: `Asks for the password, then tries the usual SMTP and IMAP hosts and ports
of the address's domain until a server accepts the login.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := mailable.AddressOf(args[0])
			if addr == "" {
				return fmt.Errorf("%q is not an email address", args[0])
			}
			if i := a.conf.FindAccount(addr); i >= 0 {
				return fmt.Errorf("%v is already account %v", addr, i)
			}

			out := cmd.OutOrStdout()
			c, err := a.loginPrompt(out).Login(cmd.Context(), addr)
			if err != nil {
				return err
			}
			acct, err := a.accountFinder(out).Find(cmd.Context(), addr, c.Password)
			if err != nil {
				return err
			}

			a.conf.AddAccount(acct)
			if err := a.saveConfig(); err != nil {
				return err
			}
			if c.Remember {
				if s := a.passwordStore(); s != nil {
					if err := s.Set(acct.Email, c.Password); err != nil {
						log.Warn().Err(err).Msg("can't store the password")
					}
				}
			}
			fmt.Fprint(out, tui.RenderAccounts(a.conf.Accounts, a.conf.SelectedAccount))
			return nil
		},
	}
}

func newAccountRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <number>",
		Short: "Remove an account and its stored password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			if i < 0 || i >= len(a.conf.Accounts) {
				return fmt.Errorf("there is no account %v", i)
			}
			email := a.conf.Accounts[i].Email
			if err := a.conf.RemoveAccount(i); err != nil {
				return err
			}
			if err := a.saveConfig(); err != nil {
				return err
			}
			if s := a.passwordStore(); s != nil {
				if err := s.Delete(email); err != nil && !errors.Is(err, credential.ErrNotFound) {
					log.Warn().Err(err).Str("account", email).Msg("can't delete the stored password")
				}
			}
			fmt.Fprint(cmd.OutOrStdout(), tui.RenderAccounts(a.conf.Accounts, a.conf.SelectedAccount))
			return nil
		},
	}
}

func newAccountSelectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "select <number>",
		Short: "Select the account used for sending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			if err := a.conf.SelectAccount(i); err != nil {
				return err
			}
			if err := a.saveConfig(); err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), tui.RenderAccounts(a.conf.Accounts, a.conf.SelectedAccount))
			return nil
		},
	}
}
