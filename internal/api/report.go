package api

import (
	"context"
	"net/http"
)

// Report is a moderation report against the current partner.
type Report struct {
	ReportedUser int64  `json:"reported_user"`
	Reason       string `json:"reason"`
	Description  string `json:"description"`
	SessionID    string `json:"session_id"`
}

// CreateReport files r and returns the report id.
func (c *Client) CreateReport(ctx context.Context, token string, r Report) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/reports/", token, r, &out)
	return out.ID, err
}
