// Package docs holds the generated Swagger spec for the HTTP facade.
// Normally produced by `swag init`; hand-written here since the template
// rarely changes and running the generator is not part of this build.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "Distributed transaction coordinator HTTP facade.",
        "title": "txcoordinatord API",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {}
}`

// SwaggerInfo holds the exported Swagger spec metadata, registered with
// swag when this package is initialized.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "txcoordinatord API",
	Description:      "Distributed transaction coordinator HTTP facade.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
