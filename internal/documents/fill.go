package documents

import (
	"fmt"
	"strings"
	"time"

	"github.com/hopl-labs/hopl-backend/internal/scoring"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
)

const (
	defaultBusinessType = "online business"
	noFindings          = "No scan findings provided"
	dateLayout          = "January 2, 2006"
)

// FillContext carries the values substituted into a template.
type FillContext struct {
	BusinessName   string
	BusinessType   string
	WebsiteURL     string
	Jurisdiction   enums.Jurisdiction
	Language       string
	AdditionalInfo string
	Date           time.Time
	Findings       []scoring.Issue
}

// Fill replaces every known placeholder in body. Unknown placeholders are left
// untouched.
func Fill(body string, c FillContext) string {
	businessType := strings.TrimSpace(c.BusinessType)
	if businessType == "" {
		businessType = defaultBusinessType
	}
	jurisdiction := c.Jurisdiction
	if jurisdiction == "" {
		jurisdiction = enums.JurisdictionGlobal
	}
	date := c.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	replacer := strings.NewReplacer(
		"{{businessName}}", strings.TrimSpace(c.BusinessName),
		"{{businessType}}", businessType,
		"{{websiteUrl}}", strings.TrimSpace(c.WebsiteURL),
		"{{jurisdiction}}", jurisdiction.DisplayName(),
		"{{date}}", date.Format(dateLayout),
		"{{language}}", normalizeLanguage(c.Language),
		"{{additionalInfo}}", strings.TrimSpace(c.AdditionalInfo),
		"{{findings}}", formatFindings(c.Findings),
	)
	return replacer.Replace(body)
}

func formatFindings(issues []scoring.Issue) string {
	var b strings.Builder
	for _, issue := range issues {
		if issue.Passed {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- **%s**: %s", issue.Title, issue.Description)
	}
	if b.Len() == 0 {
		return noFindings
	}
	return b.String()
}
