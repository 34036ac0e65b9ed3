package robots

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tensegrity/internal/structure"
)

// LoadFile reads a structure document (YAML or JSON) into an unregistered
// robot. The robot takes the document's name, or the file's base name when
// the document has none, and is settled on the ground like the built-ins.
func LoadFile(path string) (Robot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Robot{}, fmt.Errorf("read structure: %w", err)
	}
	spec, err := structure.Decode(data)
	if err != nil {
		return Robot{}, fmt.Errorf("structure %s: %w", path, err)
	}
	if spec.Name == "" {
		spec.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return Robot{
		Name:        spec.Name,
		Description: "loaded from " + path,
		Factory: func(Params) (structure.Spec, error) {
			return spec.Clone(), nil
		},
	}, nil
}
