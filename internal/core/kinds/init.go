// Package kinds registers all entity kind definitions with the core registry.
// Import this package to ensure all kinds are registered.
package kinds

// Each file uses init() to register its kinds.
