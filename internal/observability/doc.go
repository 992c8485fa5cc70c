// Package observability builds the process logger for the permission engine.
//
// Loggers are constructed once in main and injected into every component;
// nothing in this package keeps global state.
package observability
