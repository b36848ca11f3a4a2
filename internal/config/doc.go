// Package config handles configuration loading for triage-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from TRIAGE_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. ~/.config/triage/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${TRIAGE_JWT_SECRET}"
//	completion:
//	  api_key: "${OPENAI_API_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	completion:
//	  timeout: "45s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
//	server:      HTTP listen address
//	database:    entity store directory and audit log path
//	auth:        JWT secret and operator key hash
//	completion:  provider base URL, API key, model, system prompt, timeout
//	escalation:  optional TOML rules file overriding escalation keywords
//	logging:     level (debug|info|warn|error) and format (text|json)
package config
