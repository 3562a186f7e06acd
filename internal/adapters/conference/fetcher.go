// Package conference loads authoritative conference state from the
// conference API, optionally through a Redis snapshot cache.
package conference

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Hearing/internal/domain"
)

const maxBodyBytes = 4 << 20

// HTTPFetcher reads conferences from GET {base}/conferences/{id}.
type HTTPFetcher struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPFetcher(baseURL, token string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchSnapshot returns the raw conference body.
func (f *HTTPFetcher) FetchSnapshot(ctx context.Context, conferenceID string) ([]byte, error) {
	endpoint := f.baseURL + "/conferences/" + url.PathEscape(conferenceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch conference %s: %w", conferenceID, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", domain.ErrConferenceNotFound, conferenceID)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("fetch conference %s: status %d", conferenceID, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read conference %s: %w", conferenceID, err)
	}
	return body, nil
}

func (f *HTTPFetcher) GetConference(ctx context.Context, conferenceID string) (*domain.Conference, error) {
	body, err := f.FetchSnapshot(ctx, conferenceID)
	if err != nil {
		return nil, err
	}
	conf, err := decodeConference(body)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("module", "adapters.conference").
		Str("conference", conf.ID).
		Int("participants", len(conf.Participants)).
		Msg("conference fetched")
	return conf, nil
}
