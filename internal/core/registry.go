package core

import (
	"fmt"
	"sort"
	"sync"
)

// RowNormalizer turns one imported row into a record payload. It returns
// ok=false when the row carries nothing worth keeping. A non-empty id is
// used as the record id instead of a generated one.
type RowNormalizer func(row map[string]any) (id string, payload Payload, ok bool)

// KindDefinition contains everything needed to serve one entity kind.
type KindDefinition struct {
	Key    string // URL segment and audit entity name: "deals"
	Label  string // Display name used in messages: "Deals"
	Prefix string // Record id prefix: "d"
	Table  string // Storage table name

	// ImportField is the JSON field of the import body holding the rows.
	ImportField string

	// ScalarField names the single payload field of degenerate kinds whose
	// records carry one string instead of an open payload. Empty otherwise.
	ScalarField string

	// ExpectedHeaders must all be present in the first imported row.
	// Empty disables the check.
	ExpectedHeaders []string

	// Normalize builds the payload for each imported row.
	Normalize RowNormalizer

	// OwnerGated kinds require CanEdit/CanDelete for update and delete.
	OwnerGated bool

	// DefaultLimit and MaxLimit bound list pagination. Zero means unlimited.
	DefaultLimit int
	MaxLimit     int
}

// IsScalar reports whether the kind stores a single string field.
func (k *KindDefinition) IsScalar() bool {
	return k.ScalarField != ""
}

var (
	registry   = make(map[string]*KindDefinition)
	registryMu sync.RWMutex
)

// Register adds a kind definition to the registry.
// Panics if a kind with the same key is already registered or the
// definition is incomplete.
func Register(def KindDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if def.Key == "" || def.Prefix == "" || def.Table == "" || def.Normalize == nil {
		panic(fmt.Sprintf("incomplete kind definition: %q", def.Key))
	}
	if _, exists := registry[def.Key]; exists {
		panic(fmt.Sprintf("kind already registered: %s", def.Key))
	}
	if def.Label == "" {
		def.Label = def.Key
	}
	if def.ImportField == "" {
		def.ImportField = "items"
	}

	registry[def.Key] = &def
}

// Get returns a kind definition by key.
// Returns false if not found.
func Get(key string) (*KindDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// All returns all registered kinds sorted by key.
func All() []*KindDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]*KindDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})

	return result
}

// KindCount returns the number of registered kinds.
func KindCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered kinds.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]*KindDefinition)
}
