package metrics

// NewRelicContextKey is the context key under which a service's
// *newrelic.Application is stored.
type NewRelicContextKey struct{}
