// Package storage holds the registry backends.
//
// Open picks one by driver name. Every backend implements registry.Store and
// keeps the same layout: entries keyed by subject with a secondary index by
// watcher.
package storage
