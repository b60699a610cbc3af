// Package credential keeps account passwords in the operating system's
// keyring, keyed by email address.
package credential
