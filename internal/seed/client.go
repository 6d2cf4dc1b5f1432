package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/okian/rankings/internal/domain/model"
)

// Client talks to the rankings HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

type matchBody struct {
	MatchID     string   `json:"match_id"`
	PlayerIDs   []string `json:"player_ids"`
	CompletedAt string   `json:"completed_at,omitempty"`
}

type ack struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Page is one page of GET /rankings.
type Page struct {
	Rankings   []model.RankingWithPlayer `json:"rankings"`
	Pagination struct {
		Total   int  `json:"total"`
		HasMore bool `json:"has_more"`
	} `json:"pagination"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, want []int, out any) (int, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request body: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	ok := false
	for _, code := range want {
		ok = ok || resp.StatusCode == code
	}
	if !ok {
		return resp.StatusCode, fmt.Errorf("%w: %s %s: %d %s", ErrUnexpectedStatus, method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("parse response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// Healthy checks that the metrics endpoint answers.
func (c *Client) Healthy(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/healthz", nil, []int{http.StatusOK}, nil)
	return err
}

// CompleteMatch notifies the service of a finished match and reports whether
// the service had already seen the match id.
func (c *Client) CompleteMatch(ctx context.Context, m model.MatchCompleted) (duplicate bool, err error) {
	body := matchBody{MatchID: m.MatchID, PlayerIDs: m.PlayerIDs}
	if !m.CompletedAt.IsZero() {
		body.CompletedAt = m.CompletedAt.Format(time.RFC3339)
	}
	var a ack
	if _, err := c.do(ctx, http.MethodPost, "/matches/completed", body, []int{http.StatusAccepted, http.StatusOK}, &a); err != nil {
		return false, err
	}
	return a.Duplicate, nil
}

// RecomputeAll runs a full recomputation and returns the number of ranked players.
func (c *Client) RecomputeAll(ctx context.Context) (int, error) {
	var summary struct {
		Computed int `json:"computed"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/rankings/recompute", nil, []int{http.StatusOK}, &summary); err != nil {
		return 0, err
	}
	return summary.Computed, nil
}

// Rankings reads one page of a view. An empty category selects the global view.
func (c *Client) Rankings(ctx context.Context, category string, limit, offset int) (Page, error) {
	q := url.Values{}
	if category != "" {
		q.Set("category", category)
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var p Page
	_, err := c.do(ctx, http.MethodGet, "/rankings?"+q.Encode(), nil, []int{http.StatusOK}, &p)
	return p, err
}

// AllRankings pages through a whole view.
func (c *Client) AllRankings(ctx context.Context, category string, pageSize int) ([]model.RankingWithPlayer, error) {
	var out []model.RankingWithPlayer
	for offset := 0; ; {
		p, err := c.Rankings(ctx, category, pageSize, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Rankings...)
		offset += len(p.Rankings)
		if !p.Pagination.HasMore || len(p.Rankings) == 0 {
			return out, nil
		}
	}
}
