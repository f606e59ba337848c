package app

import (
	"github.com/ndmikkelsen/flashloaner/business/pricing/domain"
)

// Event is the union of notifications the monitor publishes. Consumers
// switch over the concrete types.
type Event interface {
	isEvent()
}

// PriceUpdated is emitted after every successful pool read.
type PriceUpdated struct {
	Snapshot *domain.PriceSnapshot
}

// DeltaDetected is emitted when two pools quoting the same pair diverge
// beyond the configured threshold.
type DeltaDetected struct {
	Delta *domain.PriceDelta
}

// PoolFailed is emitted on every failed pool read, stale or not.
type PoolFailed struct {
	Pool *domain.PoolDescriptor
	Err  error
}

// PoolStale is emitted once when a pool crosses the consecutive-failure
// threshold.
type PoolStale struct {
	Pool     *domain.PoolDescriptor
	Failures int
}

// PoolRecovered is emitted once when a previously stale pool reads
// successfully again.
type PoolRecovered struct {
	Pool *domain.PoolDescriptor
}

func (PriceUpdated) isEvent()  {}
func (DeltaDetected) isEvent() {}
func (PoolFailed) isEvent()    {}
func (PoolStale) isEvent()     {}
func (PoolRecovered) isEvent() {}
