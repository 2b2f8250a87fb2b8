// Package resilience provides retry policies, per-operation circuit breakers
// and the error classifier shared by the ingestion coordinator and the
// orchestration core.
//
// Every fallible operation in the core is run through an Executor, which
// consults a named CircuitBreaker and a RetryPolicy. Errors are mapped into
// the domain taxonomy by Classify; only errors it marks retryable consume
// further attempts.
package resilience
