// Package events publishes registry change notifications to a queue so that
// indexers and watchers can follow the registry without polling. Delivery is
// best effort: a failed publish never undoes a committed mutation.
package events
