// Package config provides configuration loading and validation for the
// dictation service. Values are read from YAML over built in defaults, so a
// file only needs the settings it changes.
package config
