// Package config loads and saves the carlinkd settings file.
//
// The file is YAML and lives in the platform configuration directory unless
// a path is given explicitly:
//   - Linux: $XDG_CONFIG_HOME/carlink/config.yaml or $HOME/.config/carlink/config.yaml
//   - macOS: $HOME/.config/carlink/config.yaml
//   - Windows: %LOCALAPPDATA%\carlink\config.yaml
//
// A missing file is not an error: Load returns Default(). Durations are
// written as Go duration strings ("2s", "35ms").
//
// # Usage Example
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engine := session.New(cfg.SessionConfig(), opener, sinks)
package config
