package scans

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hopl-labs/hopl-backend/internal/scoring"
	"github.com/hopl-labs/hopl-backend/pkg/db/models"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
)

// ResultDTO is the API shape of a scan result.
type ResultDTO struct {
	ID              uuid.UUID          `json:"id"`
	URL             string             `json:"url"`
	Score           int                `json:"score"`
	RiskLevel       enums.RiskLevel    `json:"risk_level"`
	Jurisdiction    enums.Jurisdiction `json:"jurisdiction"`
	Issues          []scoring.Issue    `json:"issues"`
	Recommendations []string           `json:"recommendations"`
	CatalogVersion  string             `json:"catalog_version"`
	Unreachable     bool               `json:"unreachable"`
	Cached          bool               `json:"cached"`
	CreatedAt       time.Time          `json:"created_at"`
}

// FailedIssues returns the failing issues in stored order.
func (r ResultDTO) FailedIssues() []scoring.Issue {
	out := make([]scoring.Issue, 0, len(r.Issues))
	for _, issue := range r.Issues {
		if !issue.Passed {
			out = append(out, issue)
		}
	}
	return out
}

// FromModel decodes the stored issues of m.
func FromModel(m *models.ScanResult) (*ResultDTO, error) {
	var issues []scoring.Issue
	if len(m.Issues) > 0 {
		if err := json.Unmarshal(m.Issues, &issues); err != nil {
			return nil, fmt.Errorf("decode scan issues: %w", err)
		}
	}
	recs := []string(m.Recommendations)
	if recs == nil {
		recs = []string{}
	}
	return &ResultDTO{
		ID:              m.ID,
		URL:             m.URL,
		Score:           m.Score,
		RiskLevel:       m.RiskLevel,
		Jurisdiction:    m.Jurisdiction,
		Issues:          issues,
		Recommendations: recs,
		CatalogVersion:  m.CatalogVersion,
		Unreachable:     m.Unreachable,
		CreatedAt:       m.CreatedAt,
	}, nil
}
