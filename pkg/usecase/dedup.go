package usecase

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/m-mizutani/relnote/pkg/domain/model"
)

var (
	mergePrefixes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^merge pull request #\d+ from \S+\s*`),
		regexp.MustCompile(`(?i)^merge (pr|pull request) #\d+:?\s*`),
		regexp.MustCompile(`(?i)^merged? branch '[^']*'( into \S+)?\s*`),
	}
	trailingPRRef = regexp.MustCompile(`\s*\(#\d+\)\s*$`)
	// scope and breaking marker of a conventional-commit prefix; the type word
	// stays so that "fix(parser): x" matches a PR titled "Fix x"
	conventionalPrefix = regexp.MustCompile(`^([a-zA-Z]+)(\([^)]*\))?!?:\s*`)
)

// Subject returns the first non-empty line of text
func Subject(text string) string {
	for line := range strings.SplitSeq(text, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			return s
		}
	}
	return ""
}

// CleanSubject returns the first meaningful line of text with merge markers
// removed. A merge commit subject such as "Merge pull request #12 from x/y"
// carries no content, so the next non-empty line is used instead.
func CleanSubject(text string) string {
	for line := range strings.SplitSeq(text, "\n") {
		stripped := strings.TrimSpace(line)
		for _, re := range mergePrefixes {
			stripped = re.ReplaceAllString(stripped, "")
		}
		if stripped != "" {
			return stripped
		}
	}
	return ""
}

// NormalizeSubject reduces a subject line to the form used for duplicate
// detection: merge markers, conventional-commit scope and a trailing "(#N)"
// removed, lower case, punctuation dropped and whitespace collapsed
func NormalizeSubject(text string) string {
	s := CleanSubject(text)
	s = conventionalPrefix.ReplaceAllString(s, "${1} ")
	s = trailingPRRef.ReplaceAllString(s, "")
	s = strings.ToLower(s)

	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeAuthor returns the author identity used in fingerprints: login,
// then email, then name
func NormalizeAuthor(a model.Author) string {
	for _, v := range []string{a.Login, a.Email, a.Name} {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			return v
		}
	}
	return ""
}

// Fingerprint is the duplicate detection key of a record. A record without a
// subject only matches itself.
func Fingerprint(r *model.ChangeRecord) string {
	subject := NormalizeSubject(r.Text)
	if subject == "" {
		subject = "id:" + r.ID.String()
	}
	h := sha256.New()
	h.Write([]byte(subject))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeAuthor(r.Author)))
	return hex.EncodeToString(h.Sum(nil))
}

// preferred reports whether a should represent a group instead of b
func preferred(a, b *model.EnrichedRecord) bool {
	if pa, pb := a.Kind.Priority(), b.Kind.Priority(); pa != pb {
		return pa < pb
	}
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c < 0
	}
	return a.ID < b.ID
}

// Collapse merges records with identical fingerprints into one representative
// per group. The representative is chosen by kind priority (pr, commit, issue,
// doc), then earliest timestamp, then id; it carries the union of sources,
// files and cross references of its group. Input records are not modified and
// the output is sorted by timestamp then id. Collapsing an already collapsed
// set returns an equivalent set.
func Collapse(records []*model.EnrichedRecord) []*model.EnrichedRecord {
	groups := make(map[string][]*model.EnrichedRecord)
	var order []string
	for _, r := range records {
		fp := r.Fingerprint
		if fp == "" {
			fp = Fingerprint(&r.ChangeRecord)
		}
		if _, ok := groups[fp]; !ok {
			order = append(order, fp)
		}
		groups[fp] = append(groups[fp], r)
	}

	out := make([]*model.EnrichedRecord, 0, len(order))
	for _, fp := range order {
		members := groups[fp]
		rep := members[0]
		for _, m := range members[1:] {
			if preferred(m, rep) {
				rep = m
			}
		}

		merged := rep.Clone()
		merged.Fingerprint = fp
		for _, m := range members {
			for _, src := range m.Sources {
				if !merged.HasSource(src) {
					merged.Sources = append(merged.Sources, src)
				}
			}
			for _, f := range m.Files {
				if !slices.Contains(merged.Files, f) {
					merged.Files = append(merged.Files, f)
				}
			}
			for _, ref := range m.CrossRefs {
				if !hasCrossRef(merged.CrossRefs, ref) {
					merged.CrossRefs = append(merged.CrossRefs, ref)
				}
			}
		}
		slices.SortFunc(merged.Sources, func(a, b model.SourceRef) int {
			if c := cmp.Compare(a.Kind.Priority(), b.Kind.Priority()); c != 0 {
				return c
			}
			return cmp.Compare(a.ExternalID, b.ExternalID)
		})
		slices.Sort(merged.Files)
		out = append(out, merged)
	}

	slices.SortFunc(out, func(a, b *model.EnrichedRecord) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func hasCrossRef(refs []model.CrossReference, ref model.CrossReference) bool {
	for _, r := range refs {
		if r.ID == ref.ID {
			return true
		}
	}
	return false
}
