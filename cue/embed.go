// Package cue provides the embedded CUE schemas for configuration files and
// bundle manifests.
package cue

import "embed"

// SchemaFS contains the embedded schema files.
//
//go:embed schema/*.cue
var SchemaFS embed.FS

const (
	// ConfigSchema is the path of the #Config definition within SchemaFS
	ConfigSchema = "schema/config.cue"
	// ManifestSchema is the path of the #Manifest definition within SchemaFS
	ManifestSchema = "schema/bundle.cue"
)
