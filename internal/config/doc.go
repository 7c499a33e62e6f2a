// Package config loads, normalizes, and validates dubber configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads an optional dotenv file, and honours
// environment fallbacks such as DEEPGRAM_API_KEY, OPENAI_API_KEY and
// CARTESIA_API_KEY. The Config type centralizes every knob the daemon and CLI
// need so storage directories and service endpoints are discovered in one
// pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
