package order

import "github.com/kiwari-pos/floorops/internal/enum"

// PartitionStatus summarizes one station's share of an order.
type PartitionStatus string

const (
	PartitionNone      PartitionStatus = ""
	PartitionPending   PartitionStatus = "pending"
	PartitionQueue     PartitionStatus = "queue"
	PartitionCooking   PartitionStatus = "cooking"
	PartitionReady     PartitionStatus = "ready"
	PartitionDone      PartitionStatus = "done"
	PartitionCancelled PartitionStatus = "cancelled"
)

// Closed reports whether the station has nothing left to do.
func (p PartitionStatus) Closed() bool {
	return p == PartitionDone || p == PartitionCancelled
}

// Status is the order-level fulfillment state.
type Status string

const (
	StatusPending   Status = enum.OrderStatusPending
	StatusQueue     Status = enum.OrderStatusQueue
	StatusCooking   Status = enum.OrderStatusCooking
	StatusReady     Status = enum.OrderStatusReady
	StatusCompleted Status = enum.OrderStatusCompleted
	StatusCancelled Status = enum.OrderStatusCancelled
)

// CancelPolicy decides, per station, whether a fully cancelled partition
// cancels the whole order.
type CancelPolicy struct {
	Kitchen bool
	Bar     bool
}

// DefaultCancelPolicy cancels the order only when the kitchen share is fully cancelled.
var DefaultCancelPolicy = CancelPolicy{Kitchen: true, Bar: false}

func (p CancelPolicy) cancels(s Station) bool {
	if s == Kitchen {
		return p.Kitchen
	}
	return p.Bar
}

// DerivePartitionStatus aggregates the statuses of one station's items.
// The all-cancelled check runs before the done check, otherwise it could never match.
func DerivePartitionStatus(items []Item) PartitionStatus {
	if len(items) == 0 {
		return PartitionNone
	}
	allCancelled, allDone, allReady := true, true, true
	anyCooking, anyQueue := false, false
	for _, it := range items {
		s := it.Status.normalized()
		if s != ItemCancelled {
			allCancelled = false
		}
		if !s.Finished() {
			allDone = false
		}
		if !s.Finished() && s != ItemReady {
			allReady = false
		}
		switch s {
		case ItemCooking:
			anyCooking = true
		case ItemQueue:
			anyQueue = true
		}
	}
	switch {
	case allCancelled:
		return PartitionCancelled
	case allDone:
		return PartitionDone
	case allReady:
		return PartitionReady
	case anyCooking:
		return PartitionCooking
	case anyQueue:
		return PartitionQueue
	}
	return PartitionPending
}

// Partitions splits items by station. Use Views when raw indices matter.
func Partitions(items []Item) map[Station][]Item {
	out := make(map[Station][]Item, 2)
	for _, it := range items {
		out[it.Station()] = append(out[it.Station()], it)
	}
	return out
}

// DeriveOrderStatus is the single source of truth for an order's status.
func DeriveOrderStatus(items []Item, policy CancelPolicy) Status {
	if len(items) == 0 {
		return StatusPending
	}
	parts := Partitions(items)

	allCancelled := true
	for _, it := range items {
		if it.Status != ItemCancelled {
			allCancelled = false
			break
		}
	}
	if allCancelled {
		return StatusCancelled
	}

	statuses := make(map[Station]PartitionStatus, len(parts))
	for st, its := range parts {
		statuses[st] = DerivePartitionStatus(its)
		if statuses[st] == PartitionCancelled && policy.cancels(st) {
			return StatusCancelled
		}
	}

	allClosed, allReady := true, true
	anyCooking, anyQueue, anyProgress, anyDone := false, false, false, false
	for _, ps := range statuses {
		if !ps.Closed() {
			allClosed = false
		}
		if !ps.Closed() && ps != PartitionReady {
			allReady = false
		}
		switch ps {
		case PartitionCooking:
			anyCooking = true
		case PartitionQueue:
			anyQueue = true
		case PartitionDone:
			anyProgress, anyDone = true, true
		case PartitionReady:
			anyProgress = true
		}
	}
	switch {
	case allClosed:
		return StatusCompleted
	case allReady && anyDone:
		// the last station delivered and nothing is left in preparation
		return StatusCompleted
	case allReady:
		return StatusReady
	case anyCooking, anyProgress:
		// one station finished its share while the other has not started
		return StatusCooking
	case anyQueue:
		return StatusQueue
	}
	return StatusPending
}
