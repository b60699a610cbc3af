// Package mailable holds the in-memory representation of a composed email.
// A Mailable is what the composer hands to every sender, whether the
// message leaves over SMTP, as an .eml file, or as a compose URL. It knows
// nothing about MIME or transports.
package mailable
