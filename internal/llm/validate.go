package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// compiled schemas keyed by name and definition, so two schemas that
// share a name never collide.
var schemaCache sync.Map // string -> *jsonschema.Schema

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// ExtractJSON returns the JSON payload of a model reply, unwrapping a
// fenced code block when the model added one.
func ExtractJSON(text string) json.RawMessage {
	raw := bytes.TrimSpace([]byte(text))
	if m := fencedJSON.FindSubmatch(raw); m != nil {
		raw = bytes.TrimSpace(m[1])
	}
	return json.RawMessage(raw)
}

// DecodeStructured extracts the JSON in text, checks it against schema
// and decodes it into v.
func DecodeStructured(schema *Schema, text string, v any) error {
	raw := ExtractJSON(text)
	if err := ValidateResponse(schema, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &ErrInvalidResponse{Content: raw, Err: err}
	}
	return nil
}

// ValidateResponse checks raw against schema. A nil schema accepts
// anything; failures are *ErrInvalidResponse.
func ValidateResponse(schema *Schema, raw json.RawMessage) error {
	if schema == nil {
		return nil
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return &ErrInvalidResponse{Content: raw, Err: fmt.Errorf("not JSON: %w", err)}
	}
	compiled, err := compileSchema(schema)
	if err != nil {
		return &ErrInvalidResponse{Content: raw, Err: err}
	}
	if err := compiled.Validate(doc); err != nil {
		return &ErrInvalidResponse{Content: raw, Err: fmt.Errorf("%s: %w", schema.Name, err)}
	}
	return nil
}

func compileSchema(schema *Schema) (*jsonschema.Schema, error) {
	def, err := json.Marshal(schema.Definition)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", schema.Name, err)
	}
	key := schema.Name + "\x00" + string(def)
	if s, ok := schemaCache.Load(key); ok {
		return s.(*jsonschema.Schema), nil
	}

	// The compiler wants a decoded document, not the Go value.
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(def))
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", schema.Name, err)
	}
	url := "mem://instructoria/" + schema.Name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("schema %s: %w", schema.Name, err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", schema.Name, err)
	}
	schemaCache.Store(key, s)
	return s, nil
}
