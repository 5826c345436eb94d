// Package examples contains runnable example programs demonstrating
// the eventloop package functionality.
//
// # Examples
//
// The examples directory contains the following subdirectories:
//
//   - 01_echo: A socketpair echo channel, with write watermarks, configured
//     from YAML
//   - 02_shutdown: Scheduled tasks, cancellation, and graceful shutdown
//
// # Running Examples
//
// Each example can be run from the examples directory:
//
//	cd eventloop/examples
//	go run ./01_echo/
//	go run ./02_shutdown/
//
// # Prerequisites
//
// Examples require Linux or macOS.
package examples
