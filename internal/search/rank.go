// Package search ranks catalog items against free-text queries. It is the
// manual alternative to scanning a barcode.
package search

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/erazemk/skener/internal/model"
)

// MaxResults is the number of ranked results returned for a query.
const MaxResults = 10

// Points awarded per token and per whole query.
const (
	exactPoints     = 100
	substringPoints = 50
	fuzzyPoints     = 20
	nameBonus       = 200
	codeBonus       = 150
)

// RankedResult is a catalog item with its score for a query.
type RankedResult struct {
	Item           model.SearchableItem `json:"item"`
	Score          int                  `json:"score"`
	ExactMatches   int                  `json:"exact_matches"`
	PartialMatches int                  `json:"partial_matches"`
}

// token is a lower-cased query word with its word-boundary matcher.
type token struct {
	text     string
	boundary *regexp.Regexp
}

// Rank scores every item in catalog against query and returns the best
// MaxResults, ordered by exact matches, then score, then name. Items that
// score zero are left out. Rank does not modify catalog.
func Rank(query string, catalog []model.SearchableItem) []RankedResult {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil
	}
	whole := strings.ToLower(strings.TrimSpace(query))

	var results []RankedResult
	for _, item := range catalog {
		r := score(item, tokens, whole)
		if r.Score > 0 {
			results = append(results, r)
		}
	}

	slices.SortStableFunc(results, func(a, b RankedResult) int {
		if c := cmp.Compare(b.ExactMatches, a.ExactMatches); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(strings.ToLower(a.Item.Name), strings.ToLower(b.Item.Name))
	})

	if len(results) > MaxResults {
		results = results[:MaxResults]
	}
	return results
}

func tokenize(query string) []token {
	fields := strings.Fields(strings.ToLower(query))
	tokens := make([]token, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, token{
			text:     f,
			boundary: regexp.MustCompile(`\b` + regexp.QuoteMeta(f) + `\b`),
		})
	}
	return tokens
}

// searchText joins the searchable fields of an item into one lower-cased string.
func searchText(item model.SearchableItem) string {
	return strings.ToLower(strings.Join([]string{
		item.Name,
		item.Description,
		item.EnglishDescription,
		item.Code,
		item.Location,
		item.Equipment,
		item.Barcode,
	}, " "))
}

func score(item model.SearchableItem, tokens []token, whole string) RankedResult {
	r := RankedResult{Item: item}
	text := searchText(item)
	words := strings.Fields(text)

	for _, tok := range tokens {
		switch {
		case tok.boundary.MatchString(text):
			r.Score += exactPoints
			r.ExactMatches++
		case strings.Contains(text, tok.text):
			r.Score += substringPoints
			r.PartialMatches++
		case fuzzyMatch(tok.text, words):
			r.Score += fuzzyPoints
			r.PartialMatches++
		}
	}

	if strings.Contains(strings.ToLower(item.Name), whole) {
		r.Score += nameBonus
	}
	if strings.Contains(strings.ToLower(item.Code), whole) {
		r.Score += codeBonus
	}
	return r
}

// fuzzyMatch reports whether some word is within one edit of tok, counting
// only pairs where the shorter word is longer than two characters.
func fuzzyMatch(tok string, words []string) bool {
	for _, w := range words {
		if min(utf8.RuneCountInString(tok), utf8.RuneCountInString(w)) <= 2 {
			continue
		}
		if levenshtein.ComputeDistance(tok, w) <= 1 {
			return true
		}
	}
	return false
}
