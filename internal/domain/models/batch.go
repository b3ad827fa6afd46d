package models

import "time"

// BatchStatus enumerates the lifecycle states of a production batch.
type BatchStatus string

const (
	BatchPlanning     BatchStatus = "planning"
	BatchActive       BatchStatus = "active"
	BatchQualityCheck BatchStatus = "quality_check"
	BatchCompleted    BatchStatus = "completed"
	BatchCancelled    BatchStatus = "cancelled"
	BatchPaused       BatchStatus = "paused"
)

// BatchAction enumerates the explicit transitions a user may request.
type BatchAction string

const (
	ActionStart    BatchAction = "start"
	ActionPause    BatchAction = "pause"
	ActionComplete BatchAction = "complete"
	ActionCancel   BatchAction = "cancel"
)

// batchTransitions is the complete table of explicit edges. The automatic
// active -> quality_check edge is not reachable through an action.
var batchTransitions = map[BatchStatus]map[BatchAction]BatchStatus{
	BatchPlanning: {
		ActionStart:  BatchActive,
		ActionCancel: BatchCancelled,
	},
	BatchActive: {
		ActionPause:  BatchPaused,
		ActionCancel: BatchCancelled,
	},
	BatchPaused: {
		ActionStart: BatchActive,
	},
	BatchQualityCheck: {
		ActionComplete: BatchCompleted,
	},
	BatchCompleted: {},
	BatchCancelled: {},
}

// Valid reports whether s is a known status.
func (s BatchStatus) Valid() bool {
	_, ok := batchTransitions[s]
	return ok
}

// Valid reports whether a is a known action.
func (a BatchAction) Valid() bool {
	switch a {
	case ActionStart, ActionPause, ActionComplete, ActionCancel:
		return true
	}
	return false
}

// NextStatus resolves the target of applying action in state from.
func NextStatus(from BatchStatus, action BatchAction) (BatchStatus, error) {
	to, ok := batchTransitions[from][action]
	if !ok {
		return from, &TransitionError{From: from, Action: action}
	}
	return to, nil
}

// Batch is one production run of a product.
type Batch struct {
	ID                       string      `gorm:"primaryKey;size:36" bson:"_id" json:"id"`
	ProductID                string      `gorm:"size:36;not null;uniqueIndex:idx_batch_product_number" bson:"product_id" json:"product_id"`
	BatchNumber              string      `gorm:"size:64;not null;uniqueIndex:idx_batch_product_number" bson:"batch_number" json:"batch_number"`
	TargetQuantity           int         `gorm:"not null" bson:"target_quantity" json:"target_quantity"`
	ActualQuantity           int         `bson:"actual_quantity" json:"actual_quantity"`
	Status                   BatchStatus `gorm:"size:20;index;not null;default:'planning'" bson:"status" json:"status"`
	Progress                 float64     `bson:"progress" json:"progress"`
	EstimatedDurationMinutes int         `gorm:"not null" bson:"estimated_duration_minutes" json:"estimated_duration_minutes"`
	StartTime                *time.Time  `bson:"start_time,omitempty" json:"start_time,omitempty"`
	EndTime                  *time.Time  `bson:"end_time,omitempty" json:"end_time,omitempty"`
	ActualDurationMinutes    float64     `bson:"actual_duration_minutes" json:"actual_duration_minutes"`
	Shift                    Shift       `gorm:"size:16;index;not null" bson:"shift" json:"shift"`
	OwnerID                  string      `gorm:"size:64;index;not null" bson:"owner_id" json:"owner_id"`
	Notes                    string      `gorm:"type:text" bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt                time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt                time.Time   `bson:"updated_at" json:"updated_at"`
}

// BatchSequence is the store-issued counter backing generated batch numbers.
type BatchSequence struct {
	ProductID string `gorm:"primaryKey;size:36" bson:"_id" json:"product_id"`
	LastNo    int64  `gorm:"not null;default:0" bson:"last_no" json:"last_no"`
}
