// Package runtime reads the model inventory of the local LLM runtime: the
// installed models, the models loaded in memory and the runtime version.
package runtime

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/openrag/opsconsole/internal/backend"
)

// Section names used as keys in Inventory.Errors.
const (
	SectionInstalled = "installed"
	SectionRunning   = "running"
	SectionVersion   = "version"
)

// Model is an installed model.
type Model struct {
	Name       string            `json:"name"`
	Size       int64             `json:"size"`
	Digest     string            `json:"digest,omitempty"`
	ModifiedAt backend.Timestamp `json:"modified_at"`
	Details    ModelDetails      `json:"details,omitzero"`
}

// ModelDetails describes a model's format.
type ModelDetails struct {
	Family            string `json:"family,omitempty"`
	ParameterSize     string `json:"parameter_size,omitempty"`
	QuantizationLevel string `json:"quantization_level,omitempty"`
}

// LoadedModel is a model currently held in memory.
type LoadedModel struct {
	Name      string            `json:"name"`
	Size      int64             `json:"size"`
	SizeVRAM  int64             `json:"size_vram"`
	ExpiresAt backend.Timestamp `json:"expires_at"`
}

// Inventory is a merge of the runtime's three endpoints. A failed endpoint
// leaves its section empty and is recorded in Errors.
type Inventory struct {
	Installed []Model                    `json:"installed"`
	Running   []LoadedModel              `json:"running"`
	Version   map[string]json.RawMessage `json:"version,omitempty"`
	FetchedAt time.Time                  `json:"fetched_at"`
	Errors    map[string]string          `json:"errors,omitempty"`
}

// IsRunning reports whether the named model is loaded in memory.
func (inv Inventory) IsRunning(name string) bool {
	return slices.ContainsFunc(inv.Running, func(m LoadedModel) bool { return m.Name == name })
}

// Degraded reports whether any section failed.
func (inv Inventory) Degraded() bool {
	return len(inv.Errors) > 0
}

// Reachable reports whether at least one endpoint answered.
func (inv Inventory) Reachable() bool {
	return len(inv.Errors) < 3
}

func (inv *Inventory) setError(section, msg string) {
	if inv.Errors == nil {
		inv.Errors = make(map[string]string)
	}
	inv.Errors[section] = msg
}
