// cli is responsible for the communique command tree: parsing flags,
// loading the configuration and preferences, setting up logging, and
// wiring drafts to the share package.
package cli
