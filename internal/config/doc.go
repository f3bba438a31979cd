// Package config defines the arcompile settings and provides helpers to load,
// validate and save them in YAML format.
//
// Values come from arcompile.yaml in the sketch directory, then from a .env
// file, then from the process environment. Missing values get defaults.
package config
