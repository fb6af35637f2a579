package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dmaraujo/retrosync/internal/errors"
	"github.com/dmaraujo/retrosync/internal/models"
	"github.com/dmaraujo/retrosync/internal/store"
)

// RemoteClient defines the remote sync API the engine drains against.
type RemoteClient interface {
	// Push applies a single pending mutation remotely.
	Push(ctx context.Context, entry *models.OutboxEntry) error

	// Pull returns remote update records newer than since.
	Pull(ctx context.Context, since time.Time) ([]models.RemoteUpdate, error)
}

// TokenSource supplies the bearer token for remote calls. A missing token
// does not block local operation; remote calls simply fail and requeue.
type TokenSource interface {
	Token() (string, bool)
}

// StoreTokenSource reads the bearer token from the local store.
type StoreTokenSource struct {
	st *store.Store
}

// NewStoreTokenSource creates a TokenSource over st reading the auth_token key.
func NewStoreTokenSource(st *store.Store) *StoreTokenSource {
	return &StoreTokenSource{st: st}
}

// Token implements TokenSource.
func (s *StoreTokenSource) Token() (string, bool) {
	token, ok := s.st.Get("auth_token", "").(string)
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// HTTPRemoteClient talks to the remote sync API over HTTP/JSON:
// POST {base}/sync and GET {base}/sync/updates?since=<ISO8601>.
type HTTPRemoteClient struct {
	baseURL  string
	clientID string
	tokens   TokenSource
	http     *http.Client
}

// NewHTTPRemoteClient creates a client for the API at baseURL. clientID tags
// every push so the remote can attribute writes. A nil httpClient uses the
// default client; per-call deadlines come from the caller's context.
func NewHTTPRemoteClient(baseURL, clientID string, tokens TokenSource, httpClient *http.Client) *HTTPRemoteClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPRemoteClient{
		baseURL:  baseURL,
		clientID: clientID,
		tokens:   tokens,
		http:     httpClient,
	}
}

// Push implements RemoteClient.
func (c *HTTPRemoteClient) Push(ctx context.Context, entry *models.OutboxEntry) error {
	body, err := json.Marshal(models.PushRequest{
		Key:       entry.Key,
		Action:    entry.Action,
		Payload:   entry.Payload,
		Timestamp: entry.Timestamp,
		ClientID:  c.clientID,
	})
	if err != nil {
		return errors.Wrap(errors.ErrInvalid, "failed to encode push request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sync", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to build push request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrSyncRemoteError, "push request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New(errors.ErrSyncRemoteError,
			fmt.Sprintf("push returned status %d", resp.StatusCode))
	}

	var pushResp models.PushResponse
	if err := json.NewDecoder(resp.Body).Decode(&pushResp); err != nil {
		return errors.Wrap(errors.ErrSyncRemoteError, "failed to decode push response", err)
	}
	if !pushResp.Success {
		return errors.New(errors.ErrSyncRemoteError, pushResp.Error)
	}

	return nil
}

// Pull implements RemoteClient.
func (c *HTTPRemoteClient) Pull(ctx context.Context, since time.Time) ([]models.RemoteUpdate, error) {
	endpoint := c.baseURL + "/sync/updates?since=" +
		url.QueryEscape(since.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to build pull request", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrSyncRemoteError, "pull request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.New(errors.ErrSyncRemoteError,
			fmt.Sprintf("pull returned status %d", resp.StatusCode))
	}

	var updates []models.RemoteUpdate
	if err := json.NewDecoder(resp.Body).Decode(&updates); err != nil {
		return nil, errors.Wrap(errors.ErrSyncRemoteError, "failed to decode pull response", err)
	}

	return updates, nil
}

func (c *HTTPRemoteClient) authorize(req *http.Request) {
	if c.tokens == nil {
		return
	}
	if token, ok := c.tokens.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
