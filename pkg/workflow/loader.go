package workflow

import (
	"os"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/shopfloor/pkg/errors"
)

// File is the on-disk layout of a workflow definition file.
type File struct {
	Workflows []Definition `yaml:"workflows"`
}

// Parse decodes and validates workflow definitions from YAML.
func Parse(data []byte) ([]Definition, error) {
	return parse(data, "")
}

func parse(data []byte, file string) ([]Definition, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.WrapParse("yaml", file, err)
	}
	for i := range f.Workflows {
		if err := Validate(&f.Workflows[i]); err != nil {
			return nil, err
		}
	}
	return f.Workflows, nil
}

// LoadFile reads workflow definitions from path.
func LoadFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapResource("read", "workflow file", path, err)
	}
	return parse(data, path)
}

// Marshal encodes definitions in the file layout.
func Marshal(defs []Definition) ([]byte, error) {
	return yaml.MarshalWithOptions(File{Workflows: defs}, yaml.Indent(2), yaml.IndentSequence(true))
}
