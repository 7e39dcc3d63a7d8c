package dto

import "github.com/fixdrop-app/fixdrop-api/internal/models"

// CreateRepairRequest is the client submission payload.
type CreateRepairRequest struct {
	DeviceType  string `json:"device_type" validate:"required"`
	DeviceBrand string `json:"device_brand" validate:"required"`
	DeviceModel string `json:"device_model" validate:"required"`
	Problem     string `json:"problem" validate:"required,min=10"`
}

// DiagnosisRequest records a technician's pre-diagnosis and cost estimate.
type DiagnosisRequest struct {
	Diagnosis          string `json:"diagnosis" validate:"required"`
	EstimatedCostCents *int64 `json:"estimated_cost_cents,omitempty" validate:"omitempty,gte=0"`
	TechnicianID       string `json:"technician_id,omitempty"`
}

// TransitionRequest proposes a lifecycle transition for a repair.
type TransitionRequest struct {
	Status models.RepairStatusCode `json:"status" validate:"required"`
}

// ReadyForPickupRequest marks a repair complete and designates the relay
// point the client will collect from.
type ReadyForPickupRequest struct {
	PickupRelayID string `json:"pickup_relay_id" validate:"required"`
}

// RepairQuery constrains repair listing.
type RepairQuery struct {
	Status []models.RepairStatusCode
	Limit  int
	Offset int
}
