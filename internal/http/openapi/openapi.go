// Package openapi holds the storefront API description served at
// /openapi.yaml and rendered by /docs.
package openapi

import _ "embed"

// YAML is the OpenAPI 3 document for the feed, dashboard and ops routes.
//
//go:embed openapi.yaml
var YAML []byte
