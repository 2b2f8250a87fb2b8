// Package file provides file-backed configuration: the TOML config file,
// read either key by key (ConfigStore) or as typed Settings, and the
// user-editable synonym table (SynonymStore).
package file
