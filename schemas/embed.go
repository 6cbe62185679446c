// Package schemas holds the JSON Schemas shipped with the binary.
package schemas

import _ "embed"

// Config is the JSON Schema for the configuration file.
//
//go:embed config.schema.json
var Config []byte
