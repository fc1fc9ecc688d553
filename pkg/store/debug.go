package store

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// debugYAML renders any store-level value as YAML for diagnostic log
// lines. Never touches disk, matching the "no on-disk format" Non-goal.
func debugYAML(v any) string {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<unmarshalable: %v>", err)
	}
	return string(data)
}
