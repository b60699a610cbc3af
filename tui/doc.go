// tui is responsible for the interactive pieces of the command line: the
// login prompt, the account finder console, and styled listings.
package tui
