// Package commands provides CLI command implementations.
package commands

import (
	"context"
	"encoding/json"
	"fmt"

	cortex "github.com/cortexos/cortex-go/pkg/cortex"
)

// ConfigPath is the --config flag value, set by the root command.
var ConfigPath string

// LoadSystem assembles a system from the configured (or default) config.
func LoadSystem() (*cortex.System, error) {
	cfg, err := cortex.LoadConfig(ConfigPath)
	if err != nil {
		return nil, err
	}
	return cortex.NewSystem(cfg)
}

// registerEchoHandlers installs a pass-through handler for every primitive
// that is not already registered, so CLI commands can exercise the full
// dispatch table without real implementations.
func registerEchoHandlers(sys *cortex.System) error {
	for _, id := range cortex.AllPrimitives() {
		if sys.Registry().Has(id) {
			continue
		}
		if err := sys.Registry().Register(id, func(ctx context.Context, input interface{}) (interface{}, error) {
			return input, nil
		}); err != nil {
			return fmt.Errorf("register %s: %w", id, err)
		}
	}
	return nil
}

// printJSON writes v as indented JSON.
func printJSON(v interface{}) {
	output, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(output))
}
