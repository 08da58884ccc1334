package documents

import (
	"time"

	"github.com/google/uuid"

	"github.com/hopl-labs/hopl-backend/pkg/db/models"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
	pkgpagination "github.com/hopl-labs/hopl-backend/pkg/pagination"
)

// GenerateRequest is the input of a generation.
type GenerateRequest struct {
	DocumentType   string     `json:"document_type" validate:"required"`
	BusinessName   string     `json:"business_name" validate:"required,max=200"`
	BusinessType   string     `json:"business_type" validate:"omitempty,max=200"`
	WebsiteURL     string     `json:"website_url" validate:"omitempty,max=2048"`
	Jurisdiction   string     `json:"jurisdiction" validate:"omitempty"`
	Language       string     `json:"language" validate:"omitempty,max=64"`
	ScanID         *uuid.UUID `json:"scan_id"`
	AdditionalInfo string     `json:"additional_info" validate:"omitempty,max=4000"`
}

// DocumentDTO is the API shape of a generated document.
type DocumentDTO struct {
	ID           uuid.UUID          `json:"id"`
	DocumentType enums.DocumentType `json:"document_type"`
	Title        string             `json:"title"`
	Content      string             `json:"content"`
	BusinessName string             `json:"business_name"`
	Jurisdiction enums.Jurisdiction `json:"jurisdiction"`
	Language     string             `json:"language"`
	TemplateKey  string             `json:"template_key"`
	ScanID       *uuid.UUID         `json:"scan_id,omitempty"`
	AttemptID    *uuid.UUID         `json:"attempt_id,omitempty"`
	Charged      *bool              `json:"charged,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// TypeOption is one entry of the document type catalog.
type TypeOption struct {
	Value enums.DocumentType `json:"value"`
	Label string             `json:"label"`
}

// ListParams selects a page of an account's documents.
type ListParams struct {
	UserID uuid.UUID
	pkgpagination.Params
}

// ListResult is one page of documents without their content.
type ListResult struct {
	Items  []ListItem `json:"items"`
	Cursor string     `json:"cursor"`
}

type ListItem struct {
	ID           uuid.UUID          `json:"id"`
	DocumentType enums.DocumentType `json:"document_type"`
	Title        string             `json:"title"`
	BusinessName string             `json:"business_name"`
	Jurisdiction enums.Jurisdiction `json:"jurisdiction"`
	Language     string             `json:"language"`
	CreatedAt    time.Time          `json:"created_at"`
}

func toDTO(m *models.GeneratedDocument) *DocumentDTO {
	return &DocumentDTO{
		ID:           m.ID,
		DocumentType: m.DocumentType,
		Title:        m.Title,
		Content:      m.Content,
		BusinessName: m.BusinessName,
		Jurisdiction: m.Jurisdiction,
		Language:     m.Language,
		TemplateKey:  m.TemplateKey,
		ScanID:       m.ScanID,
		CreatedAt:    m.CreatedAt,
	}
}

func toListItem(m models.GeneratedDocument) ListItem {
	return ListItem{
		ID:           m.ID,
		DocumentType: m.DocumentType,
		Title:        m.Title,
		BusinessName: m.BusinessName,
		Jurisdiction: m.Jurisdiction,
		Language:     m.Language,
		CreatedAt:    m.CreatedAt,
	}
}
