package llm_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/m-mizutani/gollem/mock"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/m-mizutani/relnote/pkg/infra/llm"
)

func textOf(input []gollem.Input) string {
	var b strings.Builder
	for _, in := range input {
		if text, ok := in.(gollem.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}

func TestGenerator(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the session answer", func(t *testing.T) {
		var prompt string
		client := &mock.LLMClientMock{
			NewSessionFunc: func(ctx context.Context, opts ...gollem.SessionOption) (gollem.Session, error) {
				return &mock.SessionMock{
					GenerateContentFunc: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
						prompt = textOf(input)
						return &gollem.Response{Texts: []string{`{"sections":`, `[]}`}}, nil
					},
				}, nil
			},
		}

		out, err := llm.NewGenerator(client).Generate(ctx, "summarize this", 100)
		gt.NoError(t, err)
		gt.Equal(t, out, `{"sections":[]}`)
		gt.Equal(t, prompt, "summarize this")
	})

	t.Run("empty answer", func(t *testing.T) {
		client := &mock.LLMClientMock{
			NewSessionFunc: func(ctx context.Context, opts ...gollem.SessionOption) (gollem.Session, error) {
				return &mock.SessionMock{
					GenerateContentFunc: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
						return &gollem.Response{}, nil
					},
				}, nil
			},
		}
		_, err := llm.NewGenerator(client).Generate(ctx, "x", 100)
		gt.Error(t, err)
	})

	t.Run("session failure", func(t *testing.T) {
		client := &mock.LLMClientMock{
			NewSessionFunc: func(ctx context.Context, opts ...gollem.SessionOption) (gollem.Session, error) {
				return nil, errors.New("quota exceeded")
			},
		}
		_, err := llm.NewGenerator(client).Generate(ctx, "x", 100)
		gt.Error(t, err)
	})
}

func TestEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("converts to float32", func(t *testing.T) {
		client := &mock.LLMClientMock{
			GenerateEmbeddingFunc: func(ctx context.Context, dimension int, input []string) ([][]float64, error) {
				gt.Equal(t, dimension, 3)
				gt.Equal(t, input, []string{"hello"})
				return [][]float64{{0.5, 0.25, -1}}, nil
			},
		}
		emb := llm.NewEmbedder(client, 3)
		gt.Equal(t, emb.Dimension(), 3)

		vec, err := emb.Embed(ctx, "hello")
		gt.NoError(t, err)
		gt.Equal(t, vec, []float32{0.5, 0.25, -1})
	})

	t.Run("wrong dimension", func(t *testing.T) {
		client := &mock.LLMClientMock{
			GenerateEmbeddingFunc: func(ctx context.Context, dimension int, input []string) ([][]float64, error) {
				return [][]float64{{1, 2}}, nil
			},
		}
		_, err := llm.NewEmbedder(client, 3).Embed(ctx, "hello")
		gt.True(t, errors.Is(err, model.ErrDimensionMismatch))
	})
}

func TestCategoryModel(t *testing.T) {
	ctx := context.Background()

	var prompt string
	client := &mock.LLMClientMock{
		NewSessionFunc: func(ctx context.Context, opts ...gollem.SessionOption) (gollem.Session, error) {
			return &mock.SessionMock{
				GenerateContentFunc: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
					prompt = textOf(input)
					return &gollem.Response{Texts: []string{`{"category":" Feature "}`}}, nil
				},
			}, nil
		},
	}

	got, err := llm.NewCategoryModel(client).Classify(ctx, "Add CSV export to reports")
	gt.NoError(t, err)
	gt.Equal(t, got, model.CategoryFeature)
	gt.True(t, strings.Contains(prompt, "Add CSV export to reports"))
	gt.True(t, strings.Contains(prompt, "breaking, feature, bugfix, docs, chore, unknown"))
}

func TestCategoryModel_WithGemini(t *testing.T) {
	projectID := os.Getenv("TEST_GEMINI_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_GEMINI_PROJECT_ID not set, skipping integration test")
	}
	location := os.Getenv("TEST_GEMINI_LOCATION")
	if location == "" {
		location = "us-central1"
	}

	ctx := context.Background()
	client, err := gemini.New(ctx, projectID, location, gemini.WithModel("gemini-2.5-flash"))
	gt.NoError(t, err)

	got, err := llm.NewCategoryModel(client).Classify(ctx, "Fix crash when the config file is empty")
	gt.NoError(t, err)
	gt.True(t, got.IsValid())
}
