// Package model provides the model registry and provider-independent helpers
// for the core.LLM contract.
//
// Core pieces:
//   - Registry: name -> client resolution with lazily invoked factories
//   - ScriptedModel: replays queued responses and records requests (tests)
//   - EchoModel: canned or echoed completions (demos)
//   - EstimateTokens / StreamOf: fallbacks for adapters lacking native support
//
// Vendor adapters live in the openai and anthropic sub-packages so higher
// layers (agents, flows) stay decoupled from vendor SDKs.
package model
