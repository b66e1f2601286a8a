// Package domain provides core business rules for the leads bounded context.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the sales-pipeline status of a lead. It is advanced by the
// sales workflow, not by the automation core.
type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusQualified Status = "qualified"
	StatusConverted Status = "converted"
	StatusClosed    Status = "closed"
)

var knownStatuses = map[Status]struct{}{
	StatusNew:       {},
	StatusContacted: {},
	StatusQualified: {},
	StatusConverted: {},
	StatusClosed:    {},
}

// IsKnownStatus reports whether s is a valid lead status.
func IsKnownStatus(s Status) bool {
	_, ok := knownStatuses[s]
	return ok
}

// IsTerminalStatus reports whether a lead in this status should no longer be
// enrolled in nurture sequences.
func IsTerminalStatus(s Status) bool {
	return s == StatusConverted || s == StatusClosed
}

// Attributes are the free-form scoring attributes captured at intake.
// Unknown or missing values contribute zero to the score, never an error.
type Attributes struct {
	CompanySize        string   `json:"companySize,omitempty"`
	Industry           string   `json:"industry,omitempty"`
	ConsultationType   string   `json:"consultationType,omitempty"`
	ProductsInterested []string `json:"productsInterested,omitempty"`
}

// DistinctProducts returns the number of distinct product codes of interest.
func (a Attributes) DistinctProducts() int {
	seen := make(map[string]struct{}, len(a.ProductsInterested))
	for _, p := range a.ProductsInterested {
		if p == "" {
			continue
		}
		seen[p] = struct{}{}
	}
	return len(seen)
}

// Lead is a prospective customer record.
type Lead struct {
	ID         uuid.UUID
	Email      string
	Phone      string
	FirstName  string
	LastName   string
	Status     Status
	Score      int
	Attributes Attributes
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
