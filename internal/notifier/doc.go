// Package notifier delivers presence notifications as direct messages.
//
// Each notice is rendered into the watcher-facing text, paced by a token
// bucket shared across all deliveries, and sent through the platform adapter.
// Delivery is attempted once; the caller decides what a failure means.
//
// # History
//
// For operator visibility the service keeps a small in-memory history of
// recent deliveries.
package notifier
