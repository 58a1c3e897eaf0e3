package httptransport

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

const createOrderSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["price", "currency"],
  "properties": {
    "price":    { "type": ["string", "number"], "pattern": "^[0-9]{1,15}(\\.[0-9]{1,18})?$" },
    "currency": { "type": "string", "minLength": 3, "maxLength": 3 },
    "userID":   { "type": "string", "maxLength": 64 },
    "hwid":     { "type": "string", "maxLength": 64 }
  },
  "additionalProperties": false
}`

const captureOrderSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["orderID"],
  "properties": {
    "orderID": { "type": "string", "minLength": 1, "maxLength": 64 },
    "userID":  { "type": "string", "maxLength": 64 },
    "hwid":    { "type": "string", "maxLength": 64 }
  },
  "additionalProperties": false
}`

var (
	createOrderBody  = mustSchema(createOrderSchema)
	captureOrderBody = mustSchema(captureOrderSchema)
)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("httptransport: compile schema: %v", err))
	}
	return schema
}

// validate checks raw against schema. A missing required property yields
// missingMsg; any other violation yields a generic invalid request.
func validate(schema *gojsonschema.Schema, raw []byte, missingMsg string) error {
	res, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return invalid("Request body must be valid JSON.")
	}
	if res.Valid() {
		return nil
	}
	for _, e := range res.Errors() {
		if e.Type() == "required" {
			return invalid(missingMsg)
		}
	}
	return invalid("Invalid request: " + res.Errors()[0].String())
}
