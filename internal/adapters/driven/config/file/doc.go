// Package file provides file-based implementations of driven port interfaces.
//
// Adapters:
//   - ConfigStore: TOML configuration (engine, scheduler and storage settings)
//     and the sync unit definitions, reloaded on change by Watch
package file
