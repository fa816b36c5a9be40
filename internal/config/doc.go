// Package config defines the settings shared by the appshell binaries and
// provides helpers to load, validate and save them in YAML format.
//
// The Config type holds the backend listen addresses, release feed endpoints,
// trusted signing keys and the install behavior of the updater.
package config
