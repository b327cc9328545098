package models

import "time"

const OTPDeliveredStatus = "DELIVERED"

// OTPLog is one SMS sent through the gateway, updated by its delivery callback.
type OTPLog struct {
	ID          int64      `json:"id" db:"id"`
	PhoneNumber string     `json:"phone_number" db:"phone_number"`
	MessageID   string     `json:"message_id" db:"message_id"`
	Status      *string    `json:"status,omitempty" db:"status"`
	IsDelivered bool       `json:"is_delivered" db:"is_delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	CallbackLog JSONMap    `json:"callback_log" db:"callback_log"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// ApplyDeliveryStatus records a gateway report. It returns false when nothing changed.
func (o *OTPLog) ApplyDeliveryStatus(status string, raw JSONMap, now time.Time) bool {
	if o.IsDelivered {
		return false
	}
	if o.Status != nil && *o.Status == status {
		return false
	}
	o.Status = &status
	o.CallbackLog = raw
	if status == OTPDeliveredStatus {
		o.IsDelivered = true
		o.DeliveredAt = stampOnce(o.DeliveredAt, now)
	}
	return true
}
