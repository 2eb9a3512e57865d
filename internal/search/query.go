package search

import (
	"context"
	"strings"
	"unicode"

	dbutil "github.com/llehouerou/crate/internal/db"
)

// DefaultLimit applies when a caller passes a non-positive limit.
const DefaultLimit = 50

// Tokenize splits a query into lowercase word tokens, dropping punctuation.
func Tokenize(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// MatchExpr builds an FTS5 expression matching any token as a prefix.
// Returns "" when the query has no tokens.
func MatchExpr(query string) string {
	tokens := Tokenize(strings.TrimSpace(query))
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = `"` + tok + `"*`
	}
	return strings.Join(quoted, " OR ")
}

// Search returns track ids matching any token of query, best match first.
func Search(ctx context.Context, q dbutil.Querier, query string, limit int) ([]int64, error) {
	expr := MatchExpr(query)
	if expr == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	var ids []int64
	err := q.SelectContext(ctx, &ids, `
		SELECT rowid FROM track_search
		WHERE track_search MATCH ?
		ORDER BY rank
		LIMIT ?
	`, expr, limit)
	return ids, err
}
