package e2e

// e2e contains integration tests that run the command line with its default
// wiring against an in-process SMTP server and a temporary home directory.
// Unlike the unit tests in cli, nothing here is replaced with a fake.
