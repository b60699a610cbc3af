// Package finder is responsible for guessing the SMTP and IMAP settings of a
// mail account from its address and password, by trying the host names and
// ports providers commonly use.
package finder
