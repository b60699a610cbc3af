package cli

import (
	"fmt"
	"net/mail"
	"os"
	"path/filepath"

	"github.com/glasspath/communique/draft"
	"github.com/glasspath/communique/email"
	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a draft as .eml or .html",
	}

	var emlOut string
	eml := &cobra.Command{
		Use:   "eml [draft]",
		Short: "Write the draft as an unsent .eml message",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, path, err := a.loadDraft(args)
			if err != nil {
				return err
			}
			m, err := d.ToMailable()
			if err != nil {
				return err
			}
			a.rememberDraft(path)
			out := emlOut
			if out == "" {
				out = filepath.Join(filepath.Dir(path), d.SuggestedFileName()+".eml")
			}
			var from *mail.Address
			if acct := a.conf.Account(); acct != nil {
				from = acct.Address()
			}
			if err := email.ExportEml(m, from, out); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	eml.Flags().StringVarP(&emlOut, "out", "o", "", "output file (default: the subject, next to the draft)")

	var htmlOut string
	html := &cobra.Command{
		Use:   "html [draft]",
		Short: "Write the draft as a standalone HTML document",
		Long:  `Writes the HTML body with images pointing at their files. Use --out - for stdout.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, path, err := a.loadDraft(args)
			if err != nil {
				return err
			}
			a.rememberDraft(path)
			if htmlOut == "-" {
				return d.ExportHTML(cmd.OutOrStdout())
			}
			out := htmlOut
			if out == "" {
				out = filepath.Join(filepath.Dir(path), d.SuggestedFileName()+".html")
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("can't create %v: %w", out, err)
			}
			if err := d.ExportHTML(f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	html.Flags().StringVarP(&htmlOut, "out", "o", "", `output file, "-" for stdout (default: the subject, next to the draft)`)

	cmd.AddCommand(eml, html)
	return cmd
}

func newDraftCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Manage draft files",
	}

	var force bool
	create := &cobra.Command{
		Use:   "new <path>",
		Short: "Create a draft to start from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%v already exists, use --force to replace it", path)
			}
			if err := draft.New().Save(path); err != nil {
				return err
			}
			a.rememberDraft(path)
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	create.Flags().BoolVarP(&force, "force", "f", false, "replace an existing file")

	cmd.AddCommand(create)
	return cmd
}
