// Package html is responsible for turning the HTML a user composed into
// what an email needs: a complete document whose inline images point at
// MIME content IDs, plus a text/plain rendering of the same content. It is
// not concerned with MIME structure or with sending, so the output can also
// be exported as a standalone file.
package html
