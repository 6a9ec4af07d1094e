// Package config loads and validates CAD Core configuration.
//
// Configuration comes from a YAML file with CADCORE_* environment
// variable overrides for deploy-time secrets (database path, broker
// credentials, the session signing secret). Validation is fail-fast:
// a missing or weak JWT secret refuses to start the service.
package config
