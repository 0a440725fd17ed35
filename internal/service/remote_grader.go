package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/model"
)

// RemoteGrader posts submissions to an external grading backend.
type RemoteGrader struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewRemoteGrader creates a grader for baseURL. Per-call deadlines come from ctx.
func NewRemoteGrader(baseURL string, client *http.Client, log zerolog.Logger) *RemoteGrader {
	if client == nil {
		client = &http.Client{}
	}
	return &RemoteGrader{
		baseURL: baseURL,
		client:  client,
		log:     log.With().Str("component", "remote_grader").Logger(),
	}
}

// Submit sends POST {baseURL}/submissions and decodes the graded result.
func (g *RemoteGrader) Submit(ctx context.Context, sub model.Submission) (*model.SubmissionResult, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/submissions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", sub.SessionID.String())

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post submission: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		g.log.Warn().
			Int("status", resp.StatusCode).
			Str("session_id", sub.SessionID.String()).
			Msg("Grader rejected submission")
		return nil, fmt.Errorf("grader returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result model.SubmissionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &result, nil
}
