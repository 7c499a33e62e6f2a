// Package llm provides the chat-completion client used by the translate stage.
//
// # Translation
//
// Client.Translate sends a system prompt and a user prompt to an
// OpenAI-compatible chat completions endpoint and returns the trimmed text of
// the first non-empty choice. Callers build the prompt; the client knows
// nothing about languages.
//
// # Configuration
//
// Requires base_url, model and a credential. The credential is resolved on
// every call so keys supplied after startup are honored.
//
// # Retry Behaviour
//
// Retries follow services.RetryPolicy: HTTP 408/429/5xx, empty completions
// and network timeouts back off exponentially (base 1s, max 10s, 3 attempts
// by default) and Retry-After is honored up to the max delay.
//
// When every attempt fails with a non-success response, the returned error
// chain carries a *services.APIError for the last response, so the message
// persisted on the job reads "OpenAI API error: <status> <body>".
package llm
