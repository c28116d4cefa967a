// Package config loads the YAML file that wires a flowmesh deployment:
// logging, session and artifact stores, code executor, models, telemetry and
// runner limits. Environment references such as ${OPENAI_API_KEY} are
// expanded before parsing.
package config
