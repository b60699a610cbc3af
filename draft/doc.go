// Package draft is responsible for the composition a user is working on:
// reading and writing it as a YAML file and turning it into something that
// can be mailed.
package draft
