// Package integration provides integration tests for the catalog aggregator.
// These tests run the complete server against fake catalog hosts and validate
// suffix resolution, ordering, caching and the static front-end fallback.
package integration
