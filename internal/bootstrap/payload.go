package bootstrap

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	xerrors "github.com/nuyoahch/agent-runtime/internal/errors"
)

// RunConfiguration is the parsed bootstrap payload.
type RunConfiguration struct {
	ThreadID   string            `json:"thread_id"`
	UserAuth   string            `json:"user_auth"`
	BaseURL    string            `json:"base_url"`
	EntryFiles []string          `json:"agent_ts_files_to_transpile"`
	EnvVars    map[string]string `json:"env_vars"`
}

func (c RunConfiguration) clone() RunConfiguration {
	c.EntryFiles = slices.Clone(c.EntryFiles)
	c.EnvVars = maps.Clone(c.EnvVars)
	return c
}

const payloadSchema = `{
  "type": "object",
  "required": ["user_auth", "thread_id", "base_url"],
  "properties": {
    "user_auth": {"type": "string"},
    "thread_id": {"type": "string", "minLength": 1},
    "base_url": {"type": "string", "minLength": 1},
    "agent_ts_files_to_transpile": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "env_vars": {"type": "object", "additionalProperties": {"type": "string"}}
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func payloadValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("bootstrap_payload.json", payloadSchema)
	})
	return schema, schemaErr
}

// ParsePayload decodes and validates a bootstrap payload.
func ParsePayload(raw []byte) (RunConfiguration, error) {
	validator, err := payloadValidator()
	if err != nil {
		return RunConfiguration{}, fmt.Errorf("compile payload schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return RunConfiguration{}, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "decode bootstrap payload")
	}
	if err := validator.Validate(doc); err != nil {
		return RunConfiguration{}, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "validate bootstrap payload")
	}

	var cfg RunConfiguration
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return RunConfiguration{}, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "decode bootstrap payload")
	}
	return cfg, nil
}

// LoadPayloadFile reads a payload stored as JSON or YAML and returns it as
// JSON text ready for Manager.Initialize.
func LoadPayloadFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeConfigInvalid, err, "read payload file")
	}
	if strings.TrimSpace(string(content)) == "" {
		return "", nil
	}
	var doc map[string]any
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return "", xerrors.Wrap(xerrors.CodeConfigInvalid, err, "parse payload file")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeConfigInvalid, err, "encode payload")
	}
	return string(data), nil
}
