// Package quotations is the CRUD glue for client quotations, the resource
// protected by code-gated share links.
package quotations

import "time"

// Quotation is a priced offer for a client.
type Quotation struct {
	ID         string
	Slug       string
	ClientName string
	Title      string
	Currency   string
	Total      float64
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Quotation lifecycle states.
const (
	StatusDraft    = "DRAFT"
	StatusSent     = "SENT"
	StatusAccepted = "ACCEPTED"
	StatusDeclined = "DECLINED"
)
