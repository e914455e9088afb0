package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	errInvalidJSON  = errors.New("invalid json body")
	errBodyTooLarge = errors.New("request body too large")
)

const sumRequestSchemaJSON = `{
  "type": "object",
  "properties": {
    "input": {"type": "string"}
  },
  "required": ["input"],
  "additionalProperties": false
}`

const batchSumRequestSchemaJSON = `{
  "type": "object",
  "properties": {
    "inputs": {
      "type": "array",
      "items": {"type": "string"}
    }
  },
  "required": ["inputs"],
  "additionalProperties": false
}`

var (
	sumRequestSchema      = sync.OnceValue(func() *santhosh.Schema { return mustCompileSchema("sum.json", sumRequestSchemaJSON) })
	batchSumRequestSchema = sync.OnceValue(func() *santhosh.Schema { return mustCompileSchema("sum-batch.json", batchSumRequestSchemaJSON) })
)

// RequestSchemaError lists why a request body does not match its schema.
type RequestSchemaError struct {
	Errors []string
}

func (e *RequestSchemaError) Error() string {
	return fmt.Sprintf("request validation failed: %s", strings.Join(e.Errors, "; "))
}

func mustCompileSchema(name, schemaJSON string) *santhosh.Schema {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	if err := compiler.AddResource(name, strings.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	return compiler.MustCompile(name)
}

// decodeValidated reads at most limit bytes, checks them against sch and
// decodes them into dst.
func decodeValidated(w http.ResponseWriter, r *http.Request, limit int64, sch *santhosh.Schema, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errBodyTooLarge
		}
		return errInvalidJSON
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var doc any
	if err := decoder.Decode(&doc); err != nil {
		return errInvalidJSON
	}
	if decoder.More() {
		return errInvalidJSON
	}

	if err := sch.Validate(doc); err != nil {
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			return &RequestSchemaError{Errors: collectValidationErrors(ve)}
		}
		return &RequestSchemaError{Errors: []string{err.Error()}}
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return errInvalidJSON
	}
	return nil
}

func collectValidationErrors(ve *santhosh.ValidationError) []string {
	var msgs []string
	for _, cause := range ve.Causes {
		msgs = append(msgs, collectValidationErrors(cause)...)
	}
	if len(ve.Causes) == 0 {
		msgs = append(msgs, ve.Error())
	}
	return msgs
}
