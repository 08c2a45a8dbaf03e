// Package main hosts the sidecar CLI entrypoint and command graph.
//
// The root command takes an image directory and runs one batch over it;
// subcommands cover configuration scaffolding, the run journal, and the
// version. Configuration is resolved once per invocation and shared by
// every command through commandContext.
package main
