// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data under the autorfp home directory.
//
// Adapters:
//   - ConfigStore: TOML-based configuration storage
//   - PromptStore: Editable agent prompts with live reload
package file
