// Package ui renders carlinkd's terminal output with Bubble Tea and Lipgloss.
//
// Two kinds of output live here. Printer writes "run once and exit" boxes
// (command header, success and error results) for commands such as
// `carlinkd config show`. Monitor is the interactive dashboard behind
// `carlinkd monitor`: it follows a status server's event feed and polls its
// snapshot once a second.
//
// # Logging Integration
//
// zap logging is silent unless CARLINK_LOG_LEVEL is set, so the curated UI
// output is not interleaved with log lines.
package ui
