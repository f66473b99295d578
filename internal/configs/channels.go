package configs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ChannelSection is one raw channel definition keyed by its name in the file.
type ChannelSection struct {
	Key    string
	Fields map[string]any
}

// LoadChannelSections reads a YAML file of the form
//
//	channels:
//	  town:
//	    id: 6f1c...
//	    type: CUSTOM
//	    name: Town Square
//
// and returns its sections in file order. Field validation is left to the registry.
func LoadChannelSections(path string) ([]ChannelSection, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read channels file: %w", err)
	}
	return ParseChannelSections(raw)
}

// ParseChannelSections decodes the YAML channel definitions in raw.
func ParseChannelSections(raw []byte) ([]ChannelSection, error) {
	var doc struct {
		Channels yaml.Node `yaml:"channels"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse channels file: %w", err)
	}

	node := doc.Channels
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse channels file: channels must be a mapping")
	}

	sections := make([]ChannelSection, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value

		var fields map[string]any
		if err := node.Content[i+1].Decode(&fields); err != nil {
			return nil, fmt.Errorf("parse channel %q: %w", key, err)
		}
		sections = append(sections, ChannelSection{Key: key, Fields: fields})
	}
	return sections, nil
}
