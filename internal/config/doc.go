// Package config defines the immutable engine configuration value that is
// threaded explicitly into resolver, engine, scheduler and executor
// construction. Multiple independent engine instances never share mutable
// configuration state.
//
// Configuration is loaded from an optional `pipeforge.yaml` file, with
// environment variable expansion, on top of built-in defaults.
package config
