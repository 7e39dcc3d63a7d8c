package models

import "time"

// RepairRequest represents one device under repair.
type RepairRequest struct {
	ID             string           `db:"id" json:"id"`
	ClientID       string           `db:"client_id" json:"client_id"`
	DeviceType     string           `db:"device_type" json:"device_type"`
	DeviceBrand    string           `db:"device_brand" json:"device_brand"`
	DeviceModel    string           `db:"device_model" json:"device_model"`
	Problem        string           `db:"problem" json:"problem"`
	Status         RepairStatusCode `db:"status" json:"status"`
	Diagnosis      *string          `db:"diagnosis" json:"diagnosis,omitempty"`
	EstimatedCost  *int64           `db:"estimated_cost_cents" json:"estimated_cost_cents,omitempty"`
	TechnicianID   *string          `db:"technician_id" json:"technician_id,omitempty"`
	DropoffRelayID *string          `db:"dropoff_relay_id" json:"dropoff_relay_id,omitempty"`
	PickupRelayID  *string          `db:"pickup_relay_id" json:"pickup_relay_id,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// DeviceLabel renders a short human description of the device.
func (r *RepairRequest) DeviceLabel() string {
	label := r.DeviceBrand + " " + r.DeviceModel
	if r.DeviceType != "" {
		label += " (" + r.DeviceType + ")"
	}
	return label
}

// RepairFilter constrains repair listing queries.
type RepairFilter struct {
	ClientID     string
	TechnicianID string
	Status       []RepairStatusCode
	Limit        int
	Offset       int
}
