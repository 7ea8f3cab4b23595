package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"golang.org/x/sync/errgroup"
)

var referencePattern = regexp.MustCompile(`(?:\b([A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+))?#(\d+)\b|\bGH-(\d+)\b`)

// ExtractReferences returns the issue or pull request numbers referenced in
// text, in order of first appearance. References qualified with another
// repository are ignored.
func ExtractReferences(repoName, text string) []int {
	var out []int
	seen := make(map[int]bool)
	for _, m := range referencePattern.FindAllStringSubmatch(text, -1) {
		digits := m[2]
		if m[1] != "" && !strings.EqualFold(m[1], repoName) {
			continue
		}
		if m[3] != "" {
			digits = m[3]
		}
		n, err := strconv.Atoi(digits)
		if err != nil || n <= 0 || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Enricher attaches cross references to records
type Enricher struct {
	tracker     interfaces.IssueTracker
	concurrency int
	timeout     time.Duration
}

// NewEnricher creates an enricher resolving references through tracker. A nil
// tracker marks every reference as broken.
func NewEnricher(tracker interfaces.IssueTracker, concurrency int, timeout time.Duration) *Enricher {
	if concurrency <= 0 {
		concurrency = 4
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Enricher{tracker: tracker, concurrency: concurrency, timeout: timeout}
}

// Enrich resolves references of all records concurrently. Resolution failures
// become broken references; only cancellation of ctx is returned as an error.
// Category and text of the records are never changed.
func (e *Enricher) Enrich(ctx context.Context, repo *model.Repository, records []*model.EnrichedRecord) error {
	var (
		mu    sync.Mutex
		cache = make(map[int]model.CrossReference)
	)

	resolve := func(ctx context.Context, n int) model.CrossReference {
		mu.Lock()
		ref, ok := cache[n]
		mu.Unlock()
		if ok {
			return ref
		}

		ref = e.resolve(ctx, repo, n)
		mu.Lock()
		cache[n] = ref
		mu.Unlock()
		return ref
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.concurrency)

	for _, rec := range records {
		eg.Go(func() error {
			for _, n := range ExtractReferences(repo.Name, rec.Text) {
				if err := egCtx.Err(); err != nil {
					return err
				}
				ref := resolve(egCtx, n)
				if !hasCrossRef(rec.CrossRefs, ref) {
					rec.CrossRefs = append(rec.CrossRefs, ref)
				}
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return goerr.Wrap(err, "enrichment cancelled", goerr.V("repository", repo.Name))
	}
	return nil
}

func (e *Enricher) resolve(ctx context.Context, repo *model.Repository, n int) model.CrossReference {
	id := fmt.Sprintf("%s#%d", repo.Name, n)
	if e.tracker == nil {
		return model.CrossReference{ID: id, Number: n, Broken: true, Reason: "issue tracker not available"}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ref, err := e.tracker.ResolveReference(callCtx, repo, n)
	if err != nil {
		ctxlog.From(ctx).Debug("Reference could not be resolved",
			"reference", id,
			"error", err,
		)
		return model.CrossReference{ID: id, Number: n, Broken: true, Reason: err.Error()}
	}

	out := *ref
	out.ID = id
	out.Number = n
	return out
}
