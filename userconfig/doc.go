// Package userconfig persists what the user configured between runs: the
// list of sender accounts (an XML file) and application preferences (a YAML
// file that environment variables can override).
package userconfig
