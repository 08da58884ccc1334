package documents

import (
	"context"
	"strings"

	"github.com/hopl-labs/hopl-backend/pkg/enums"
)

// Prompt is what a Generator receives: the filled template plus enough context
// to instruct a model.
type Prompt struct {
	DocumentType enums.DocumentType
	Label        string
	Language     string
	Body         string
}

// Generator turns a filled template into the final Markdown document.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// TemplateGenerator returns the filled template as the document. It is used
// when no model API key is configured.
type TemplateGenerator struct{}

func (TemplateGenerator) Name() string { return "template" }

func (TemplateGenerator) Generate(ctx context.Context, prompt Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(prompt.Body) + "\n", nil
}
