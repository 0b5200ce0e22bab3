// Package webhooks receives transport deliveries over HTTP, dedupes them
// through a delivery ledger, and hands them to the inbound dispatcher.
// The transport always sees a 200 once a request reaches the processor.
package webhooks
