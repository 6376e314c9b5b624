package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MalformedPayloadError marks model output that failed extraction, schema
// validation, or decoding. Callers retry once on it before falling back.
type MalformedPayloadError struct {
	Reason string
}

func (e *MalformedPayloadError) Error() string {
	return "malformed model payload: " + e.Reason
}

// ExtractJSON pulls the JSON object out of raw model text. Models are
// asked for strict JSON but occasionally wrap it in prose or fences.
func ExtractJSON(raw string) ([]byte, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") {
		return []byte(text), nil
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, &MalformedPayloadError{Reason: "no JSON object found in model output"}
	}
	return []byte(text[start : end+1]), nil
}

// MustSchema compiles a JSON schema literal. Panics on invalid schemas,
// which are programming errors.
func MustSchema(name, src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return schema
}

// UnmarshalValidated extracts the JSON object from raw model text,
// validates it against schema, and decodes it into out. All failure modes
// surface as MalformedPayloadError.
func UnmarshalValidated(schema *jsonschema.Schema, raw string, out any) error {
	doc, err := ExtractJSON(raw)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(doc, &generic); err != nil {
		return &MalformedPayloadError{Reason: err.Error()}
	}
	if err := schema.Validate(generic); err != nil {
		return &MalformedPayloadError{Reason: err.Error()}
	}
	if err := json.Unmarshal(doc, out); err != nil {
		return &MalformedPayloadError{Reason: err.Error()}
	}
	return nil
}

// IsMalformed reports whether err is a malformed-payload error.
func IsMalformed(err error) bool {
	var me *MalformedPayloadError
	return errors.As(err, &me)
}
