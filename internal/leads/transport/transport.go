// Package transport defines the HTTP request and response shapes for leads.
package transport

import (
	"time"

	"leadflow_backend/internal/leads/domain"

	"github.com/google/uuid"
)

type AttributesRequest struct {
	CompanySize        string   `json:"companySize"`
	Industry           string   `json:"industry"`
	ConsultationType   string   `json:"consultationType"`
	ProductsInterested []string `json:"productsInterested"`
}

func (r AttributesRequest) ToDomain() domain.Attributes {
	return domain.Attributes{
		CompanySize:        r.CompanySize,
		Industry:           r.Industry,
		ConsultationType:   r.ConsultationType,
		ProductsInterested: r.ProductsInterested,
	}
}

type CreateLeadRequest struct {
	Email      string            `json:"email" binding:"required,email"`
	Phone      string            `json:"phone"`
	FirstName  string            `json:"firstName" binding:"required,min=1,max=100"`
	LastName   string            `json:"lastName" binding:"max=100"`
	Attributes AttributesRequest `json:"attributes"`
}

type UpdateAttributesRequest struct {
	Attributes AttributesRequest `json:"attributes" binding:"required"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type LeadResponse struct {
	ID                uuid.UUID         `json:"id"`
	Email             string            `json:"email"`
	Phone             string            `json:"phone,omitempty"`
	FirstName         string            `json:"firstName"`
	LastName          string            `json:"lastName,omitempty"`
	Status            string            `json:"status"`
	Score             int               `json:"score"`
	Priority          string            `json:"priority"`
	RecommendedAction string            `json:"recommendedAction"`
	ActionSLA         string            `json:"actionSla"`
	Attributes        AttributesRequest `json:"attributes"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

type ScoreBreakdownResponse struct {
	Score    int            `json:"score"`
	Priority string         `json:"priority"`
	Factors  map[string]int `json:"factors"`
}
