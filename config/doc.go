// Package config loads lodstream configuration.
//
// Two sources are supported: a YAML/TOML/JSON file plus LODSTREAM_*
// environment variables through viper, and the renderer's line based .vis
// settings files, which list model paths and memory budgets.
package config
