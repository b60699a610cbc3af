// Package account describes a sender account: the address mail is sent from
// plus the SMTP and IMAP settings used to reach it. It also holds the lists
// of well-known host prefixes and ports the account finder tries.
package account
