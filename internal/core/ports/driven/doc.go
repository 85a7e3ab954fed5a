// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - ModelClient: Sends prompts to a hosted or local inference service
//   - Repository: Durable persistence for workflows and every stage's records
//   - TextExtractor: Turns uploaded files into plain text
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - RetrievalService: Grounded answers. Without it, answers come from the model fallback.
//   - Cache: Read accelerator in front of the Repository.
//   - PromptStore: Customised prompt templates. Without it, compiled-in prompts are used.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
