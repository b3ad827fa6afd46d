package models

import "time"

// SaveOutcome tells whether a report save inserted or overwrote a row.
type SaveOutcome string

const (
	ReportCreated SaveOutcome = "created"
	ReportUpdated SaveOutcome = "updated"
)

// ReportKey identifies the single logical report of an owner for a shift and day.
type ReportKey struct {
	OwnerID string `json:"owner_id"`
	Shift   Shift  `json:"shift"`
	Day     string `json:"day"`
}

// ReportLine is one snapshot row embedded in a shift report.
type ReportLine struct {
	ProductID   string  `bson:"product_id" json:"product_id"`
	ProductName string  `bson:"product_name" json:"product_name"`
	Quantity    int     `bson:"quantity" json:"quantity"`
	UnitPrice   float64 `bson:"unit_price" json:"unit_price"`
	Discount    float64 `bson:"discount,omitempty" json:"discount,omitempty"`
	Amount      float64 `bson:"amount" json:"amount"`
}

// ShiftReport is the persisted end-of-shift summary for one owner.
type ShiftReport struct {
	ID             string       `gorm:"primaryKey;size:36" bson:"_id" json:"id"`
	OwnerID        string       `gorm:"size:64;not null;uniqueIndex:idx_report_key" bson:"owner_id" json:"owner_id"`
	Shift          Shift        `gorm:"size:16;not null;uniqueIndex:idx_report_key" bson:"shift" json:"shift"`
	Day            string       `gorm:"size:10;not null;uniqueIndex:idx_report_key" bson:"day" json:"day"`
	Revenue        float64      `gorm:"not null" bson:"revenue" json:"revenue"`
	ItemsSold      int          `gorm:"not null" bson:"items_sold" json:"items_sold"`
	RemainingValue float64      `gorm:"not null" bson:"remaining_value" json:"remaining_value"`
	SalesLines     []ReportLine `gorm:"serializer:json" bson:"sales_lines" json:"sales_lines"`
	RemainingLines []ReportLine `gorm:"serializer:json" bson:"remaining_lines" json:"remaining_lines"`
	Feedback       string       `gorm:"type:text" bson:"feedback,omitempty" json:"feedback,omitempty"`
	CreatedAt      time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `bson:"updated_at" json:"updated_at"`
}

// Key returns the uniqueness key of the report.
func (r *ShiftReport) Key() ReportKey {
	return ReportKey{OwnerID: r.OwnerID, Shift: r.Shift, Day: r.Day}
}
