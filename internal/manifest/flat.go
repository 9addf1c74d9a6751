package manifest

import (
	"bytes"
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/longform/internal/workspace"
)

// flatFile is the YAML view of a manifest: one record per node.
type flatFile struct {
	DocumentTitle   string   `yaml:"document_title"`
	GenerationOrder []string `yaml:"generation_order"`
	Nodes           []*Node  `yaml:"nodes"`
}

// SaveFlat writes the node list as YAML for quick inspection.
func SaveFlat(path string, m *Manifest) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(flatFile{
		DocumentTitle:   m.DocumentTitle(),
		GenerationOrder: m.GenerationOrder,
		Nodes:           m.Nodes,
	}); err != nil {
		return fmt.Errorf("encode flat manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode flat manifest: %w", err)
	}
	return workspace.WriteFile(path, buf.String())
}

// LoadFlat reads the node list written by SaveFlat.
func LoadFlat(path string) ([]*Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f flatFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return f.Nodes, nil
}
