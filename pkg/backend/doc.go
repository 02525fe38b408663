// Package backend produces replies for AI channels.
//
// A Responder is selected by configuration: echo (no model), direct (one
// stateless model call per message) or conversation (multi-turn history per
// session). Model access goes through a Provider for Gemini, OpenAI or
// Anthropic, with retries on transient errors.
package backend
