package sysconfig

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

var (
	defaultsOnce sync.Once
	defaults     map[string]string
)

// Default returns the shipped default for key, or the empty string when the
// key is unknown. The defaults file is parsed once; a malformed file is a
// build artifact problem and panics at first use.
func Default(key string) string {
	defaultsOnce.Do(func() {
		defaults = make(map[string]string)
		if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
			panic(fmt.Errorf("sysconfig: malformed defaults.yaml: %w", err))
		}
	})
	return defaults[key]
}
