package models

// RepairStatusCode identifies a stage of the repair lifecycle. Codes are
// stable identifiers; labels and colors live in the repair_statuses catalog
// and are presentation only.
type RepairStatusCode string

const (
	StatusSubmitted      RepairStatusCode = "SUBMITTED"
	StatusReceived       RepairStatusCode = "RECEIVED"
	StatusDiagnosed      RepairStatusCode = "DIAGNOSED"
	StatusInRepair       RepairStatusCode = "IN_REPAIR"
	StatusReadyForPickup RepairStatusCode = "READY_FOR_PICKUP"
	StatusDelivered      RepairStatusCode = "DELIVERED"
	StatusCancelled      RepairStatusCode = "CANCELLED"
)

// RepairStatus is a catalog row describing a lifecycle stage for UI rendering.
type RepairStatus struct {
	Code        RepairStatusCode `db:"code" json:"code"`
	Label       string           `db:"label" json:"label"`
	Description string           `db:"description" json:"description"`
	Color       string           `db:"color" json:"color"`
	Position    int              `db:"position" json:"position"`
}

// legalTransitions lists the only forward edges of the lifecycle. CANCELLED
// is reachable from every non-terminal state and handled in CanTransition.
var legalTransitions = map[RepairStatusCode][]RepairStatusCode{
	StatusSubmitted:      {StatusReceived},
	StatusReceived:       {StatusDiagnosed},
	StatusDiagnosed:      {StatusInRepair},
	StatusInRepair:       {StatusReadyForPickup},
	StatusReadyForPickup: {StatusDelivered},
}

// IsTerminal reports whether no further transitions are possible.
func (s RepairStatusCode) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// IsValid reports whether the code belongs to the fixed status set.
func (s RepairStatusCode) IsValid() bool {
	switch s {
	case StatusSubmitted, StatusReceived, StatusDiagnosed, StatusInRepair,
		StatusReadyForPickup, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to target is a legal edge.
// No skipping and no backward motion.
func (s RepairStatusCode) CanTransition(target RepairStatusCode) bool {
	if target == StatusCancelled {
		return !s.IsTerminal()
	}
	for _, next := range legalTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}
