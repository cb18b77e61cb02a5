package handlers

import (
	"errors"
	"strconv"

	"glacierguard-api/models"
	"glacierguard-api/store"

	"github.com/gin-gonic/gin"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

var (
	errBadLimit = errors.New("limit must be a positive integer")
	errBadAfter = errors.New("after must be a non-negative detection id")
)

// CursorResponse is one keyset page of detections. NextCursor is the id to
// pass as ?after= for the following page.
type CursorResponse struct {
	Data       []models.Detection `json:"data"`
	NextCursor string             `json:"next_cursor,omitempty"`
	HasMore    bool               `json:"has_more"`
}

// parsePage reads ?limit= and ?after=. Limits above MaxLimit are clamped.
func parsePage(c *gin.Context) (store.Page, error) {
	p := store.Page{Limit: DefaultLimit}

	if raw, ok := c.GetQuery("limit"); ok {
		l, err := strconv.Atoi(raw)
		if err != nil || l <= 0 {
			return store.Page{}, errBadLimit
		}
		p.Limit = min(l, MaxLimit)
	}

	if raw, ok := c.GetQuery("after"); ok {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			return store.Page{}, errBadAfter
		}
		p.AfterID = id
	}
	return p, nil
}

func newCursorResponse(rows []models.Detection, hasMore bool) CursorResponse {
	resp := CursorResponse{Data: rows, HasMore: hasMore}
	if hasMore && len(rows) > 0 {
		resp.NextCursor = strconv.FormatInt(rows[len(rows)-1].ID, 10)
	}
	return resp
}
