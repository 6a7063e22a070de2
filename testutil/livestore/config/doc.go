// Package config provides environment-based configuration for the live store
// tests and the demo application.
//
// Settings are read from FADEN_* environment variables, optionally seeded
// from a .env file in the working directory. Every accessor has a default
// that works without any configuration: the memory engine, in-memory badger,
// in-memory SQLite, and no metrics endpoint.
package config
