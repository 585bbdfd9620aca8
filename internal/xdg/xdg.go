// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

// Package xdg locates MentorHub files in the XDG Base Directory layout.
package xdg

import (
	"os"
	"path/filepath"
)

const (
	appName        = "mentorhub"
	configFileName = "config.yaml"
)

// ConfigDir returns $XDG_CONFIG_HOME/mentorhub, falling back to
// ~/.config/mentorhub.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// ConfigFile returns the default config file path and whether a regular
// file exists there.
func ConfigFile() (string, bool) {
	path := filepath.Join(ConfigDir(), configFileName)
	info, err := os.Stat(path)
	return path, err == nil && info.Mode().IsRegular()
}

// ResolveConfigFile returns explicit when set, otherwise the default config
// file if one exists, otherwise "".
func ResolveConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if path, ok := ConfigFile(); ok {
		return path
	}
	return ""
}
