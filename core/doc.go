// Package core holds the shared domain model, collaborator contracts,
// configuration, and error envelope for the conversational-commerce relay.
//
// The relay receives chat updates over a webhook, resolves the sender to a
// customer record in the backend store, searches the product catalog, and
// drives the order-placement handshake. Everything that talks to the outside
// world (messaging transport, backend store) is reached through the narrow
// interfaces declared here; concrete clients live in their own packages.
package core
