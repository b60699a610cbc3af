// Package mailbox talks to the IMAP server of an account: it finds the
// folder sent mail belongs in and files copies of sent messages there.
package mailbox
