// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// The workflow service runs each pipeline in a goroutine of the calling
// process; progress is fanned out to subscribers through a Broadcaster.
package services
