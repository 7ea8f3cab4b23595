package usecase

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/m-mizutani/relnote/pkg/utils/metrics"
	"golang.org/x/sync/errgroup"
)

// TemplateVersion identifies the prompt templates below. It is stored on every
// draft so that regenerated drafts can be compared.
const TemplateVersion = "v1"

//go:embed prompts/summary_internal.md
var internalPromptTemplate string

//go:embed prompts/summary_external.md
var externalPromptTemplate string

var errMalformedOutput = goerr.New("malformed generator output")

var (
	backtickTerm   = regexp.MustCompile("`([^`]+)`")
	camelCaseTerm  = regexp.MustCompile(`\b(?:[a-z]+[A-Z]|[A-Z][a-z0-9]+[A-Z])[A-Za-z0-9]*\b`)
	snakeCaseTerm  = regexp.MustCompile(`\b[A-Za-z0-9]+_[A-Za-z0-9_]+\b`)
	callTerm       = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_.]*)\(\)`)
	commonPathPart = map[string]bool{
		"pkg": true, "internal": true, "cmd": true, "src": true, "lib": true,
		"app": true, "main": true, "test": true, "tests": true, "docs": true,
		"doc": true, "readme": true, "index": true, "config": true, "go": true,
	}
)

// Summary is the pair of generated release notes for one record set
type Summary struct {
	Internal        string
	External        string
	TemplateVersion string
}

// Summarizer produces internal and external summaries from enriched records,
// using similar historical records and approved summaries as context
type Summarizer struct {
	embedder  interfaces.Embedder
	records   interfaces.SimilarityIndex
	summaries interfaces.SimilarityIndex
	generator interfaces.Generator

	templates  map[model.Audience]*template.Template
	contextK   int
	maxLength  int
	maxTries   uint
	timeout    time.Duration
	newBackOff func() backoff.BackOff
}

// SummarizerOption configures a Summarizer
type SummarizerOption func(*Summarizer)

// WithContextSize sets how many similar entries are taken from each index
func WithContextSize(k int) SummarizerOption {
	return func(s *Summarizer) { s.contextK = k }
}

// WithMaxLength sets the length limit in characters of one generated answer
func WithMaxLength(n int) SummarizerOption {
	return func(s *Summarizer) { s.maxLength = n }
}

// WithGenerationTries sets the number of attempts per audience
func WithGenerationTries(n uint) SummarizerOption {
	return func(s *Summarizer) { s.maxTries = n }
}

// WithGenerationTimeout bounds one embedding, query or generation call
func WithGenerationTimeout(d time.Duration) SummarizerOption {
	return func(s *Summarizer) { s.timeout = d }
}

// WithGenerationBackOff replaces the retry schedule between attempts
func WithGenerationBackOff(fn func() backoff.BackOff) SummarizerOption {
	return func(s *Summarizer) { s.newBackOff = fn }
}

// NewSummarizer creates a Summarizer. records and summaries are the two
// similarity indexes used for context retrieval.
func NewSummarizer(
	embedder interfaces.Embedder,
	records interfaces.SimilarityIndex,
	summaries interfaces.SimilarityIndex,
	generator interfaces.Generator,
	opts ...SummarizerOption,
) (*Summarizer, error) {
	funcs := template.FuncMap{"join": strings.Join}

	internal, err := template.New("internal").Funcs(funcs).Parse(internalPromptTemplate)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse internal prompt template")
	}
	external, err := template.New("external").Funcs(funcs).Parse(externalPromptTemplate)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse external prompt template")
	}

	s := &Summarizer{
		embedder:  embedder,
		records:   records,
		summaries: summaries,
		generator: generator,
		templates: map[model.Audience]*template.Template{
			model.AudienceInternal: internal,
			model.AudienceExternal: external,
		},
		contextK:  5,
		maxLength: 8000,
		maxTries:  3,
		timeout:   2 * time.Minute,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 15 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type promptRecord struct {
	Subject string
	Body    string
	Author  string
	Refs    []string
	Files   []string
}

type promptCategory struct {
	Name    model.Category
	Records []promptRecord
}

type promptData struct {
	Repository   string
	CategoryList string
	MaxLength    int
	Categories   []promptCategory
	Context      []string
	History      []string
	Terms        []string
	Feedback     string
}

type generatedSection struct {
	Category model.Category `json:"category"`
	Items    []string       `json:"items"`
}

type generatedSummary struct {
	Sections []generatedSection `json:"sections"`
}

// Summarize generates both audiences from the same record slice. It returns
// model.ErrSummarizationFailed when either audience exhausts its retries.
func (s *Summarizer) Summarize(ctx context.Context, repo *model.Repository, records []*model.EnrichedRecord) (*Summary, error) {
	if len(records) == 0 {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "no records to summarize")
	}

	ordered := slices.Clone(records)
	slices.SortStableFunc(ordered, func(a, b *model.EnrichedRecord) int {
		if c := a.Category.Rank() - b.Category.Rank(); c != 0 {
			return c
		}
		return a.Timestamp.Compare(b.Timestamp)
	})

	related, history := s.retrieveContext(ctx, repo, ordered)

	base := promptData{
		Repository: repo.Name,
		MaxLength:  s.maxLength,
		Categories: groupForPrompt(ordered),
	}
	categories := model.CategoriesOf(ordered)
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	base.CategoryList = strings.Join(names, ", ")
	terms := TechnicalTerms(ordered)

	texts := make([]string, len(model.Audiences))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, audience := range model.Audiences {
		data := base
		switch audience {
		case model.AudienceInternal:
			data.Context = related
			data.History = history
		case model.AudienceExternal:
			data.Terms = terms
		}

		eg.Go(func() error {
			sections, err := s.generate(egCtx, audience, data, categories, terms)
			if err != nil {
				return err
			}
			texts[i] = renderMarkdown(audience, sections)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return &Summary{
		Internal:        texts[0],
		External:        texts[1],
		TemplateVersion: TemplateVersion,
	}, nil
}

// retrieveContext looks up similar earlier records and approved summaries of
// the same repository. Retrieval is best effort: failures are logged and the
// summary is generated without context.
func (s *Summarizer) retrieveContext(ctx context.Context, repo *model.Repository, records []*model.EnrichedRecord) (related, history []string) {
	logger := ctxlog.From(ctx)
	if s.embedder == nil || s.contextK <= 0 {
		return nil, nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	vec, err := s.embedder.Embed(embedCtx, RepresentationText(records))
	if err != nil {
		logger.Warn("Failed to embed record set, summarizing without context", "error", err)
		return nil, nil
	}

	exclude := make(map[string]bool, len(records))
	for _, r := range records {
		exclude[r.ID.String()] = true
	}

	query := func(idx interfaces.SimilarityIndex, name string) []string {
		if idx == nil {
			return nil
		}
		queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		// over-fetch so that filtering still leaves up to contextK entries
		matches, err := idx.Query(queryCtx, vec, s.contextK*4+len(exclude))
		if err != nil {
			logger.Warn("Failed to query similarity index", "index", name, "error", err)
			return nil
		}

		var out []string
		for _, m := range matches {
			if exclude[m.ID] || m.Metadata[model.MetaRepositoryID] != repo.ID.String() {
				continue
			}
			if text := m.Metadata[model.MetaText]; text != "" {
				out = append(out, text)
			}
			if len(out) == s.contextK {
				break
			}
		}
		return out
	}

	var eg errgroup.Group
	eg.Go(func() error {
		related = query(s.records, "records")
		return nil
	})
	eg.Go(func() error {
		history = query(s.summaries, "summaries")
		return nil
	})
	_ = eg.Wait()

	return related, history
}

func (s *Summarizer) generate(ctx context.Context, audience model.Audience, data promptData, categories []model.Category, terms []string) ([]generatedSection, error) {
	logger := ctxlog.From(ctx)
	tmpl := s.templates[audience]

	op := func() ([]generatedSection, error) {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, backoff.Permanent(goerr.Wrap(err, "failed to render prompt", goerr.V("audience", audience)))
		}

		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		out, err := s.generator.Generate(callCtx, buf.String(), s.maxLength)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			metrics.GenerationAttempts.WithLabelValues(string(audience), "error").Inc()
			logger.Warn("Summary generation failed", "audience", audience, "error", err)
			return nil, err
		}

		sections, err := parseGenerated(out, s.maxLength, categories, audience, terms)
		if err != nil {
			metrics.GenerationAttempts.WithLabelValues(string(audience), "malformed").Inc()
			logger.Warn("Generated summary rejected", "audience", audience, "error", err)
			data.Feedback = err.Error()
			return nil, err
		}

		metrics.GenerationAttempts.WithLabelValues(string(audience), "ok").Inc()
		return sections, nil
	}

	sections, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(s.maxTries),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, goerr.Wrap(ctx.Err(), "summarization cancelled", goerr.V("audience", audience))
		}
		return nil, goerr.Wrap(model.ErrSummarizationFailed, "summary generation exhausted retries",
			goerr.V("audience", audience),
			goerr.V("last_error", err.Error()),
		)
	}
	return sections, nil
}

// parseGenerated validates one generator answer: JSON sections covering exactly
// the input categories, within maxLength, and for the external audience free of
// technical terms
func parseGenerated(out string, maxLength int, categories []model.Category, audience model.Audience, terms []string) ([]generatedSection, error) {
	if n := utf8.RuneCountInString(out); n > maxLength {
		return nil, goerr.Wrap(errMalformedOutput, fmt.Sprintf("answer has %d characters, limit is %d", n, maxLength))
	}

	var doc generatedSummary
	if err := json.Unmarshal([]byte(stripCodeFence(out)), &doc); err != nil {
		return nil, goerr.Wrap(errMalformedOutput, "answer is not the requested JSON: "+err.Error())
	}

	want := make(map[model.Category]bool, len(categories))
	for _, c := range categories {
		want[c] = true
	}
	got := make(map[model.Category]bool, len(doc.Sections))
	for _, sec := range doc.Sections {
		if !want[sec.Category] {
			return nil, goerr.Wrap(errMalformedOutput, fmt.Sprintf("unexpected category %q", sec.Category))
		}
		if got[sec.Category] {
			return nil, goerr.Wrap(errMalformedOutput, fmt.Sprintf("category %q appears twice", sec.Category))
		}
		if len(sec.Items) == 0 {
			return nil, goerr.Wrap(errMalformedOutput, fmt.Sprintf("category %q has no items", sec.Category))
		}
		got[sec.Category] = true
	}
	for _, c := range categories {
		if !got[c] {
			return nil, goerr.Wrap(errMalformedOutput, fmt.Sprintf("category %q is missing", c))
		}
	}

	if audience == model.AudienceExternal {
		for _, sec := range doc.Sections {
			for _, item := range sec.Items {
				if term, ok := containsTerm(item, terms); ok {
					return nil, goerr.Wrap(errMalformedOutput, fmt.Sprintf("external text mentions technical term %q", term))
				}
			}
		}
	}

	return doc.Sections, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func containsTerm(text string, terms []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, term := range terms {
		idx := 0
		for {
			j := strings.Index(lower[idx:], term)
			if j < 0 {
				break
			}
			start, end := idx+j, idx+j+len(term)
			if isBoundary(lower, start-1) && isBoundary(lower, end) {
				return term, true
			}
			idx = start + 1
		}
	}
	return "", false
}

func isBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_')
}

// TechnicalTerms harvests words from records that must not appear in the
// external summary: conventional commit scopes, file paths and names, and
// code identifiers. Terms are lower case and sorted.
func TechnicalTerms(records []*model.EnrichedRecord) []string {
	set := make(map[string]bool)
	add := func(term string) {
		term = strings.ToLower(strings.TrimSpace(term))
		if len(term) < 3 || commonPathPart[term] {
			return
		}
		set[term] = true
	}

	for _, r := range records {
		if m := conventionalCommit.FindStringSubmatch(CleanSubject(r.Text)); m != nil && m[2] != "" {
			scope := strings.Trim(m[2], "()")
			for part := range strings.FieldsFuncSeq(scope, func(r rune) bool { return r == ',' || r == '/' || r == ' ' }) {
				add(part)
			}
		}

		for _, f := range r.Files {
			add(f)
			parts := strings.Split(f, "/")
			for _, p := range parts[:len(parts)-1] {
				add(p)
			}
			base := parts[len(parts)-1]
			add(base)
			if dot := strings.LastIndex(base, "."); dot > 0 {
				add(base[:dot])
			}
		}

		for _, m := range backtickTerm.FindAllStringSubmatch(r.Text, -1) {
			add(m[1])
		}
		for _, m := range callTerm.FindAllStringSubmatch(r.Text, -1) {
			add(m[1])
		}
		for _, m := range camelCaseTerm.FindAllString(r.Text, -1) {
			add(m)
		}
		for _, m := range snakeCaseTerm.FindAllString(r.Text, -1) {
			add(m)
		}
	}

	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// RepresentationText is the text embedded to find context for a record set
func RepresentationText(records []*model.EnrichedRecord) string {
	var b strings.Builder
	for _, r := range records {
		fmt.Fprintf(&b, "[%s] %s\n", r.Category, Subject(r.Text))
	}
	return b.String()
}

func groupForPrompt(records []*model.EnrichedRecord) []promptCategory {
	var out []promptCategory
	for _, r := range records {
		if len(out) == 0 || out[len(out)-1].Name != r.Category {
			out = append(out, promptCategory{Name: r.Category})
		}
		subject := Subject(r.Text)
		body := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(r.Text), subject))
		body = strings.Join(strings.Fields(body), " ")

		pr := promptRecord{
			Subject: subject,
			Body:    body,
			Author:  r.Author.Login,
			Files:   r.Files,
		}
		if pr.Author == "" {
			pr.Author = r.Author.Name
		}
		for _, ref := range r.CrossRefs {
			if ref.Broken {
				continue
			}
			label := fmt.Sprintf("#%d", ref.Number)
			if ref.Title != "" {
				label += " " + ref.Title
			}
			pr.Refs = append(pr.Refs, label)
		}
		out[len(out)-1].Records = append(out[len(out)-1].Records, pr)
	}
	return out
}

// renderMarkdown renders sections in canonical category order with headings
// for the audience
func renderMarkdown(audience model.Audience, sections []generatedSection) string {
	sorted := slices.Clone(sections)
	slices.SortFunc(sorted, func(a, b generatedSection) int {
		return a.Category.Rank() - b.Category.Rank()
	})

	var b strings.Builder
	for i, sec := range sorted {
		if i > 0 {
			b.WriteString("\n")
		}
		label := sec.Category.InternalLabel()
		if audience == model.AudienceExternal {
			label = sec.Category.ExternalLabel()
		}
		fmt.Fprintf(&b, "## %s\n\n", label)
		for _, item := range sec.Items {
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(item))
		}
	}
	return b.String()
}
