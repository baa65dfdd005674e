package swagger

import _ "embed"

// OpenAPI is the embedded description of the operator API.
//
//go:embed openapi.yaml
var OpenAPI []byte
