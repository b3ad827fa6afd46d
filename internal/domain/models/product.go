package models

import "time"

// Product is catalog reference data shared by every event type.
type Product struct {
	ID        string    `gorm:"primaryKey;size:36" bson:"_id" json:"id"`
	Name      string    `gorm:"size:255;not null" bson:"name" json:"name"`
	UnitPrice float64   `gorm:"not null;default:0" bson:"unit_price" json:"unit_price"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
