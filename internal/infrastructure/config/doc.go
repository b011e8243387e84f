// Package config loads and validates the Inkboard auth service configuration.
//
// Configuration comes from a YAML file with INKBOARD_* environment variable
// overrides for deployment-specific and secret values. Validation happens
// once, at startup; a process with a bad signing secret or a nonsensical
// token lifetime never starts.
package config
