// Package inbound classifies webhook updates into conversation events
// and guards their processing with idempotency claims, so a redelivered
// update never runs a handler twice.
package inbound
