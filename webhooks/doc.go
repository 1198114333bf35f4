// Package webhooks receives provider notification deliveries.
//
// A request is either a validation handshake, answered by echoing the
// validationToken query value, or a batch delivery. Each notification in a
// batch is verified, classified, written and dispatched on its own; the
// per-item outcomes are returned together in the response body.
package webhooks
