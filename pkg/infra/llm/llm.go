// Package llm adapts a gollem LLM client to the generator, embedder and
// category model used by the pipeline.
package llm

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
)

//go:embed prompts/generate_system.md
var generateSystemPrompt string

//go:embed prompts/classify_system.md
var classifySystemPrompt string

//go:embed prompts/classify_user.md
var classifyUserTemplate string

var classifyTemplate = template.Must(template.New("classify").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(classifyUserTemplate))

func generateJSON(ctx context.Context, client gollem.LLMClient, system, prompt string) (string, error) {
	session, err := client.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionSystemPrompt(system),
	)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create LLM session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(prompt))
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate LLM content")
	}
	if len(resp.Texts) == 0 {
		return "", goerr.New("no response from LLM")
	}
	return strings.Join(resp.Texts, ""), nil
}

// Generator produces summary text with a fresh session per call
type Generator struct {
	client gollem.LLMClient
}

var _ interfaces.Generator = (*Generator)(nil)

// NewGenerator creates a Generator
func NewGenerator(client gollem.LLMClient) *Generator {
	return &Generator{client: client}
}

// Generate returns the raw answer. Length and format are validated by the caller.
func (g *Generator) Generate(ctx context.Context, prompt string, maxLength int) (string, error) {
	ctxlog.From(ctx).Debug("Calling LLM for generation",
		"prompt_length", len(prompt),
		"max_length", maxLength,
	)
	return generateJSON(ctx, g.client, generateSystemPrompt, prompt)
}

// Embedder converts text into vectors of a fixed dimension
type Embedder struct {
	client    gollem.LLMClient
	dimension int
}

var _ interfaces.Embedder = (*Embedder)(nil)

// NewEmbedder creates an Embedder requesting dimension-sized vectors
func NewEmbedder(client gollem.LLMClient, dimension int) *Embedder {
	return &Embedder{client: client, dimension: dimension}
}

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.client.GenerateEmbedding(ctx, e.dimension, []string{text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embedding")
	}
	if len(vectors) != 1 {
		return nil, goerr.New("unexpected number of embeddings", goerr.V("count", len(vectors)))
	}
	if len(vectors[0]) != e.dimension {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "embedding has unexpected dimension",
			goerr.V("expected", e.dimension),
			goerr.V("actual", len(vectors[0])),
		)
	}

	out := make([]float32, len(vectors[0]))
	for i, v := range vectors[0] {
		out[i] = float32(v)
	}
	return out, nil
}

// CategoryModel asks the LLM for one category of a change
type CategoryModel struct {
	client gollem.LLMClient
}

var _ interfaces.CategoryModel = (*CategoryModel)(nil)

// NewCategoryModel creates a CategoryModel
func NewCategoryModel(client gollem.LLMClient) *CategoryModel {
	return &CategoryModel{client: client}
}

// Classify returns the category named by the LLM. The answer is not
// validated here; the classifier rejects values outside the enumeration.
func (m *CategoryModel) Classify(ctx context.Context, text string) (model.Category, error) {
	names := make([]string, len(model.Categories))
	for i, c := range model.Categories {
		names[i] = string(c)
	}

	var buf bytes.Buffer
	if err := classifyTemplate.Execute(&buf, map[string]any{
		"Categories": names,
		"Text":       text,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to execute classify prompt template")
	}

	out, err := generateJSON(ctx, m.client, classifySystemPrompt, buf.String())
	if err != nil {
		return "", err
	}

	var answer struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(out), &answer); err != nil {
		return "", goerr.Wrap(err, "failed to parse LLM response", goerr.V("response", out))
	}
	return model.Category(strings.ToLower(strings.TrimSpace(answer.Category))), nil
}
