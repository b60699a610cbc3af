// share is responsible for handing a composed email to the transport the
// user picked: SMTP, an .eml file, a mailto: link, a web compose page, or a
// desktop mail client started from the command line. It also keeps a short
// history of what was shared.
package share
