package store

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/roach88/simkernel/internal/content"
)

//go:embed descriptor.schema.json
var descriptorSchemaJSON string

const descriptorSchemaURL = "descriptor.schema.json"

var descriptorSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.CompileString(descriptorSchemaURL, descriptorSchemaJSON)
})

// ErrUnknownFormat is returned for descriptor files whose extension is
// not .json, .yaml, .yml or .simz.
var ErrUnknownFormat = errors.New("unknown descriptor format")

// LoadDescriptorFile reads a descriptor, choosing the decoder by
// extension. The result is also checked with Descriptor.Validate.
func LoadDescriptorFile(path string) (content.Descriptor, error) {
	var (
		d   content.Descriptor
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		d, err = loadJSON(path)
	case ".yaml", ".yml":
		d, err = loadYAML(path)
	case ".simz":
		d, err = ReadSimzFile(path)
	default:
		return d, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
	if err != nil {
		return d, fmt.Errorf("%s: %w", path, err)
	}
	if err := d.Validate(); err != nil {
		return d, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// FileLoader resolves File content from disk.
var FileLoader content.Loader = content.LoaderFunc(LoadDescriptorFile)

// ValidateDescriptorJSON checks raw JSON against the descriptor schema.
func ValidateDescriptorJSON(data []byte) error {
	schema, err := descriptorSchema()
	if err != nil {
		return fmt.Errorf("compile descriptor schema: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

func loadJSON(path string) (content.Descriptor, error) {
	var d content.Descriptor
	data, err := os.ReadFile(path)
	if err != nil {
		return d, err
	}
	if err := ValidateDescriptorJSON(data); err != nil {
		return d, err
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("decode: %w", err)
	}
	return d, nil
}

func loadYAML(path string) (content.Descriptor, error) {
	var d content.Descriptor
	f, err := os.Open(path)
	if err != nil {
		return d, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return d, fmt.Errorf("decode: %w", err)
	}
	return d, nil
}

// WriteDescriptorFile writes d in the format named by path's extension.
// JSON output is canonical.
func WriteDescriptorFile(path string, d content.Descriptor) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, _, err = EncodeDescriptor(d)
		data = append(data, '\n')
	case ".yaml", ".yml":
		data, err = yaml.Marshal(d)
	case ".simz":
		return WriteSimzFile(path, d)
	default:
		return fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
