// Package agents implements the agent execution contract and the
// role-specific agents built on it.
//
// Every agent turns an input string plus accumulated context into a typed
// output through one model invocation. The Executor owns prompt assembly,
// retry with linear backoff and result recovery; each agent supplies a role
// instruction and a Processor that repairs or pattern-extracts the reply.
//
// Agent outputs embed a domain.Provenance recording whether the reply parsed
// cleanly or was recovered by a lower-confidence fallback.
package agents
