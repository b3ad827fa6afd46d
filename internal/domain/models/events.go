package models

import "time"

// ProductionEvent records units produced for a product during a shift.
// Events are append-only.
type ProductionEvent struct {
	ID         string    `gorm:"primaryKey;size:36" bson:"_id" json:"id"`
	ProductID  string    `gorm:"size:36;index;not null" bson:"product_id" json:"product_id"`
	Quantity   int       `gorm:"not null" bson:"quantity" json:"quantity"`
	Shift      Shift     `gorm:"size:16;index;not null" bson:"shift" json:"shift"`
	OwnerID    string    `gorm:"size:64" bson:"owner_id,omitempty" json:"owner_id,omitempty"`
	BatchID    string    `gorm:"size:36" bson:"batch_id,omitempty" json:"batch_id,omitempty"`
	OccurredAt time.Time `gorm:"index;not null" bson:"occurred_at" json:"occurred_at"`
}

// SalesEvent records a sale line. UnitPrice overrides the product price when set.
type SalesEvent struct {
	ID         string    `gorm:"primaryKey;size:36" bson:"_id" json:"id"`
	ProductID  string    `gorm:"size:36;index;not null" bson:"product_id" json:"product_id"`
	Quantity   int       `gorm:"not null" bson:"quantity" json:"quantity"`
	UnitPrice  *float64  `bson:"unit_price,omitempty" json:"unit_price,omitempty"`
	Discount   float64   `gorm:"not null;default:0" bson:"discount" json:"discount"`
	Shift      Shift     `gorm:"size:16;index;not null" bson:"shift" json:"shift"`
	OwnerID    string    `gorm:"size:64;index;not null" bson:"owner_id" json:"owner_id"`
	OccurredAt time.Time `gorm:"index;not null" bson:"occurred_at" json:"occurred_at"`
}

// RemainingStockEntry is a manually counted leftover, one per owner and product.
type RemainingStockEntry struct {
	ID        string    `gorm:"primaryKey;size:36" bson:"_id" json:"id"`
	OwnerID   string    `gorm:"size:64;not null;uniqueIndex:idx_remaining_owner_product" bson:"owner_id" json:"owner_id"`
	ProductID string    `gorm:"size:36;not null;uniqueIndex:idx_remaining_owner_product" bson:"product_id" json:"product_id"`
	Quantity  int       `gorm:"not null" bson:"quantity" json:"quantity"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
