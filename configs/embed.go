// Package configs provides the embedded configuration template written by
// `patrag init`. Embedding it keeps the template available in every
// distribution, source builds and binary releases alike.
package configs

import _ "embed"

// ConfigTemplate is the annotated starter configuration. Every key mirrors
// a field of internal/config.Config with its default value.
//
//go:embed patrag.example.yaml
var ConfigTemplate string
