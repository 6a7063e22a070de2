// Package helper provides shared test utilities for livestore tests:
// fixture builders and Given* arrangement helpers for person records, an
// inline dispatcher that makes asynchronous queries deterministic, and spy
// implementations of the observability and listener interfaces.
package helper
