package message

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAML reads a dispatch from a YAML file holding a flat mapping of
// scalars. Key order in the file is kept.
func LoadYAML(path string) (*Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dispatch file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes a flat YAML mapping of scalars into a Message.
func ParseYAML(data []byte) (*Message, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse dispatch YAML: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return New(), nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("dispatch YAML must be a mapping")
	}

	m := New()
	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("dispatch YAML key %q must hold a scalar", k.Value)
		}
		if v.Tag == "!!null" {
			return nil, fmt.Errorf("dispatch YAML key %q is null", k.Value)
		}
		m.Set(k.Value, v.Value)
	}
	return m, nil
}
