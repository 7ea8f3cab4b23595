package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/m-mizutani/relnote/pkg/domain/types"
	"github.com/m-mizutani/relnote/pkg/infra/vector/memory"
	repomemory "github.com/m-mizutani/relnote/pkg/repository/memory"
	"github.com/m-mizutani/relnote/pkg/usecase"
)

type pipelineFixture struct {
	repo     *repomemory.Repository
	target   *model.Repository
	provider *fakeProvider
	gen      *fakeGenerator
	records  *memory.Index
	pipeline *usecase.Pipeline
}

func newPipelineFixture(t *testing.T, provider *fakeProvider, gen *fakeGenerator) *pipelineFixture {
	t.Helper()
	ctx := context.Background()

	f := &pipelineFixture{
		repo:     repomemory.New(),
		target:   newTestRepo(),
		provider: provider,
		gen:      gen,
		records:  memory.New(testDim),
	}
	gt.NoError(t, f.repo.PutRepository(ctx, f.target))

	classifier, err := usecase.NewClassifier(nil)
	gt.NoError(t, err)

	emb := &fakeEmbedder{dim: testDim}
	summarizer, err := usecase.NewSummarizer(emb, f.records, memory.New(testDim), gen,
		usecase.WithGenerationBackOff(noBackOff),
		usecase.WithGenerationTries(3),
	)
	gt.NoError(t, err)

	f.pipeline = usecase.NewPipeline(f.repo, &fakeFactory{provider: provider, tracker: &fakeTracker{}}, classifier, summarizer,
		usecase.WithExtractorOptions(usecase.WithFetchBackOff(noBackOff)),
		usecase.WithRecordIndex(emb, f.records),
	)
	return f
}

func TestPipeline_DuplicateBugfix(t *testing.T) {
	ts := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	provider := &fakeProvider{
		pages: map[model.Cursor]*model.FetchResult{
			"": {
				Events: []*model.RawEvent{
					commitEvent("c1", "fix: null pointer in parser", "alice", ts, "internal/parser/lexer.go"),
					commitEvent("c2", "Merge PR #42: fix null pointer in parser", "alice", ts.Add(time.Hour), "internal/parser/lexer.go"),
				},
				Next: "after-c2",
				Done: true,
			},
		},
	}
	gen := &fakeGenerator{fn: func(prompt string, attempt int) (string, error) {
		if audienceOf(prompt) == model.AudienceInternal {
			return sectionsJSON("bugfix", "Fix null pointer dereference in the parser lexer"), nil
		}
		if attempt == 1 {
			return sectionsJSON("bugfix", "Fixed a parser crash"), nil
		}
		return sectionsJSON("bugfix", "Fixed a stability issue"), nil
	}}
	f := newPipelineFixture(t, provider, gen)
	ctx := context.Background()

	result, err := f.pipeline.Run(ctx, f.target)
	gt.NoError(t, err)
	gt.Equal(t, result.Records, 1)
	gt.Value(t, result.DraftID).NotEqual(types.DraftID(""))

	draft, err := f.repo.GetDraft(ctx, result.DraftID)
	gt.NoError(t, err)
	gt.Equal(t, draft.Status, model.DraftStatusDraft)
	gt.True(t, draft.Active)
	gt.True(t, strings.Contains(strings.ToLower(draft.Internal), "parser"))
	gt.True(t, strings.Contains(draft.External, "Fixed a stability issue"))
	gt.False(t, strings.Contains(strings.ToLower(draft.External), "parser"))
	gt.Equal(t, draft.RecordIDs, []types.RecordID{"commit:c1"})

	records, err := f.repo.GetRecords(ctx, f.target.ID, draft.RecordIDs)
	gt.NoError(t, err)
	gt.Equal(t, records[0].Category, model.CategoryBugfix)
	gt.A(t, records[0].Sources).Length(2)

	cursor, err := f.repo.GetCursor(ctx, f.target.ID)
	gt.NoError(t, err)
	gt.Equal(t, cursor, model.Cursor("after-c2"))
	gt.Equal(t, f.records.Len(), 1)

	t.Run("second run has no new changes", func(t *testing.T) {
		result, err := f.pipeline.Run(ctx, f.target)
		gt.NoError(t, err)
		gt.Equal(t, result.Reason, usecase.ReasonNoNewChanges)
		gt.Equal(t, result.DraftID, types.DraftID(""))
		gt.Equal(t, provider.Calls()[len(provider.Calls())-1], model.Cursor("after-c2"))
	})
}

func TestPipeline_SummarizationFailure(t *testing.T) {
	ts := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	provider := &fakeProvider{
		pages: map[model.Cursor]*model.FetchResult{
			"": {
				Events: []*model.RawEvent{commitEvent("c1", "feat: add export", "alice", ts)},
				Next:   "after-c1",
				Done:   true,
			},
		},
	}
	gen := &fakeGenerator{fn: func(prompt string, attempt int) (string, error) {
		return "", errors.New("model unavailable")
	}}
	f := newPipelineFixture(t, provider, gen)
	ctx := context.Background()

	_, err := f.pipeline.Run(ctx, f.target)
	gt.True(t, errors.Is(err, model.ErrSummarizationFailed))

	drafts, err := f.repo.ListDrafts(ctx, f.target.ID)
	gt.NoError(t, err)
	gt.A(t, drafts).Length(0)

	// records and cursor survive for the next run
	pending, err := f.repo.ListPendingRecords(ctx, f.target.ID)
	gt.NoError(t, err)
	gt.A(t, pending).Length(1)
	gt.Equal(t, pending[0].Category, model.CategoryFeature)

	cursor, err := f.repo.GetCursor(ctx, f.target.ID)
	gt.NoError(t, err)
	gt.Equal(t, cursor, model.Cursor("after-c1"))
}

func TestPipeline_SourceUnavailable(t *testing.T) {
	provider := &fakeProvider{
		errs: []error{errors.New("boom"), errors.New("boom"), errors.New("boom"), errors.New("boom"), errors.New("boom")},
	}
	gen := &fakeGenerator{fn: func(string, int) (string, error) { return "", nil }}
	f := newPipelineFixture(t, provider, gen)

	_, err := f.pipeline.Run(context.Background(), f.target)
	gt.True(t, errors.Is(err, model.ErrSourceUnavailable))
	gt.A(t, gen.Prompts()).Length(0)
}
