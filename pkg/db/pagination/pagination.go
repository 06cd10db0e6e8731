// Package pagination implements opaque cursor paging for list endpoints.
// Tokens carry the id of the last row already served; callers over-fetch by
// one row and let Trim derive the next token.
package pagination

import (
	"encoding/base64"
	"encoding/json"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Query binds the cursor parameters of a list request.
type Query struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

// Limit clamps the requested page size to the served window.
func (q Query) Limit() int {
	if q.PageSize < 1 {
		return defaultPageSize
	}
	if q.PageSize > maxPageSize {
		return maxPageSize
	}
	return q.PageSize
}

type cursor struct {
	ID string `json:"id"`
}

// PageInfo is attached to list responses.
type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

// EncodeToken wraps the id of the last served row in an opaque token.
func EncodeToken(id string) string {
	b, _ := json.Marshal(cursor{ID: id})
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeToken returns the row id carried by token. An empty token means the
// first page.
func DecodeToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	var c cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return "", err
	}
	return c.ID, nil
}

// Trim cuts an over-fetched result down to limit rows and derives the next
// token from the last surviving row.
func Trim[T any](rows []T, limit int, idOf func(T) string) ([]T, PageInfo) {
	if len(rows) <= limit {
		return rows, PageInfo{}
	}
	rows = rows[:limit]
	return rows, PageInfo{
		HasMore:       true,
		NextPageToken: EncodeToken(idOf(rows[len(rows)-1])),
	}
}
