package models

// Notification is an outbound message for an operator.
type Notification struct {
	To      string `json:"to" binding:"required"`
	Title   string `json:"title"`
	Message string `json:"message" binding:"required"`
}
