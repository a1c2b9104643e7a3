// Package registry implements the central many-writer/many-reader stream
// registry: a concurrent map of stream identities to broadcast endpoints,
// with sequence-header caching, GOP catch-up, a publisher grace period,
// and backpressure-tolerant fan-out to subscribers.
package registry

import "fmt"

// Key identifies a logical stream by its RTMP application and stream
// name. Two publishers may not simultaneously own the same key.
type Key struct {
	App  string
	Name string
}

func (k Key) String() string { return fmt.Sprintf("%s/%s", k.App, k.Name) }
