package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/m-mizutani/relnote/pkg/utils/metrics"
)

var (
	conventionalCommit = regexp.MustCompile(`^([a-zA-Z]+)(\([^)]*\))?(!)?:\s*\S`)
	breakingFooter     = regexp.MustCompile(`(?m)^BREAKING[ -]CHANGE:`)

	conventionalTypes = map[string]model.Category{
		"feat":     model.CategoryFeature,
		"feature":  model.CategoryFeature,
		"fix":      model.CategoryBugfix,
		"bugfix":   model.CategoryBugfix,
		"hotfix":   model.CategoryBugfix,
		"docs":     model.CategoryDocs,
		"doc":      model.CategoryDocs,
		"chore":    model.CategoryChore,
		"build":    model.CategoryChore,
		"ci":       model.CategoryChore,
		"refactor": model.CategoryChore,
		"style":    model.CategoryChore,
		"test":     model.CategoryChore,
		"perf":     model.CategoryChore,
		"deps":     model.CategoryChore,
	}

	keywordRules = []struct {
		re       *regexp.Regexp
		category model.Category
	}{
		{regexp.MustCompile(`(?i)^(fix|fixes|fixed|resolve|resolves|resolved)\b`), model.CategoryBugfix},
		{regexp.MustCompile(`(?i)\b(bug|crash|regression)\b`), model.CategoryBugfix},
		{regexp.MustCompile(`(?i)^(add|adds|added|introduce|introduces|implement|implements|support)\b`), model.CategoryFeature},
		{regexp.MustCompile(`(?i)^(update|improve|clarify)\s+(the\s+)?(docs|documentation|readme)\b`), model.CategoryDocs},
		{regexp.MustCompile(`(?i)\b(readme|documentation)\b`), model.CategoryDocs},
		{regexp.MustCompile(`(?i)^(bump|upgrade|chore)\b`), model.CategoryChore},
	}
)

type compiledRule struct {
	name     string
	re       *regexp.Regexp
	category model.Category
}

// Classifier assigns categories. Deterministic rules are tried first and the
// category model is consulted only when none matches.
type Classifier struct {
	rules       []compiledRule
	rulesDigest string
	model       interfaces.CategoryModel
	timeout     time.Duration

	mu   sync.Mutex
	memo map[string]model.Category
}

// ClassifierOption configures a Classifier
type ClassifierOption func(*Classifier)

// WithCategoryModel sets the fallback model classifier
func WithCategoryModel(m interfaces.CategoryModel) ClassifierOption {
	return func(c *Classifier) { c.model = m }
}

// WithClassifyTimeout bounds one model call
func WithClassifyTimeout(d time.Duration) ClassifierOption {
	return func(c *Classifier) { c.timeout = d }
}

// NewClassifier compiles user rules and builds a classifier
func NewClassifier(rules []model.ClassificationRule, opts ...ClassifierOption) (*Classifier, error) {
	c := &Classifier{
		timeout: 30 * time.Second,
		memo:    make(map[string]model.Category),
	}

	h := sha256.New()
	for _, r := range rules {
		if !r.Category.IsValid() {
			return nil, goerr.Wrap(model.ErrInvalidArgument, "rule has unknown category",
				goerr.V("rule", r.Name), goerr.V("category", r.Category))
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, goerr.Wrap(model.ErrInvalidArgument, "rule has invalid pattern",
				goerr.V("rule", r.Name), goerr.V("pattern", r.Pattern), goerr.V("error", err.Error()))
		}
		c.rules = append(c.rules, compiledRule{name: r.Name, re: re, category: r.Category})
		h.Write([]byte(r.Pattern + "\x00" + string(r.Category) + "\x00"))
	}
	c.rulesDigest = hex.EncodeToString(h.Sum(nil))

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// hash identifies the classification input; a record whose hash is unchanged
// keeps its category
func (c *Classifier) hash(r *model.ChangeRecord) string {
	h := sha256.New()
	h.Write([]byte(string(r.Kind) + "\x00" + r.Text + "\x00" + c.rulesDigest))
	return hex.EncodeToString(h.Sum(nil))
}

// Classify sets Category, ClassifiedBy and ClassifiedHash on r. It never fails:
// a model error or an invalid model answer yields the unknown category.
func (c *Classifier) Classify(ctx context.Context, r *model.ChangeRecord) {
	hash := c.hash(r)
	if r.ClassifiedHash == hash && r.Category.IsValid() {
		return
	}

	category, by := c.decide(ctx, r)
	r.Category = category
	r.ClassifiedBy = by
	r.ClassifiedHash = hash
	metrics.ClassificationsTotal.WithLabelValues(string(by)).Inc()
}

func (c *Classifier) decide(ctx context.Context, r *model.ChangeRecord) (model.Category, model.ClassifiedBy) {
	if category, ok := c.matchRules(r); ok {
		return category, model.ClassifiedByRule
	}

	if c.model == nil {
		return model.CategoryUnknown, model.ClassifiedByFallback
	}

	key := textKey(r.Text)
	c.mu.Lock()
	cached, ok := c.memo[key]
	c.mu.Unlock()
	if ok {
		return cached, model.ClassifiedByModel
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	category, err := c.model.Classify(callCtx, r.Text)
	if err != nil {
		ctxlog.From(ctx).Warn("Model classification failed, using unknown",
			"record_id", r.ID,
			"error", err,
		)
		return model.CategoryUnknown, model.ClassifiedByFallback
	}
	if !category.IsValid() {
		ctxlog.From(ctx).Warn("Model returned invalid category, using unknown",
			"record_id", r.ID,
			"category", category,
		)
		return model.CategoryUnknown, model.ClassifiedByFallback
	}

	c.mu.Lock()
	c.memo[key] = category
	c.mu.Unlock()
	return category, model.ClassifiedByModel
}

func (c *Classifier) matchRules(r *model.ChangeRecord) (model.Category, bool) {
	subject := CleanSubject(r.Text)
	conv := conventionalCommit.FindStringSubmatch(subject)

	if (conv != nil && conv[3] == "!") || breakingFooter.MatchString(r.Text) {
		return model.CategoryBreaking, true
	}

	for _, rule := range c.rules {
		if rule.re.MatchString(r.Text) {
			return rule.category, true
		}
	}

	if conv != nil {
		if category, ok := conventionalTypes[strings.ToLower(conv[1])]; ok {
			return category, true
		}
	}

	if r.Kind == model.RawKindDoc {
		return model.CategoryDocs, true
	}

	for _, kw := range keywordRules {
		if kw.re.MatchString(subject) {
			return kw.category, true
		}
	}
	return "", false
}

func textKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
