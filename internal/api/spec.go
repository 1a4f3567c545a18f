package api

import (
	_ "embed"
)

//go:generate go tool oapi-codegen -config cfg.yaml openapi.yaml

// Spec is the OpenAPI document served at /api/v1/openapi.yaml
//
//go:embed openapi.yaml
var Spec []byte
