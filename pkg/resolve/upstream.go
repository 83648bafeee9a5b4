package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const metadataTimeout = 10 * time.Second

// ObjectMetadata is the storage API's answer for one object.
type ObjectMetadata struct {
	IsPublic    bool   `json:"is_public"`
	ExternalURI string `json:"external_uri"`
	MimeType    string `json:"mime_type"`
}

// UpstreamClient resolves object ids against the storage API.
type UpstreamClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewUpstreamClient(baseURL, apiKey string) *UpstreamClient {
	return &UpstreamClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: metadataTimeout},
	}
}

// PublicObject fetches the public metadata record for objectID. Returns
// ErrObjectNotFound on 404 and *UpstreamError for transport failures or any
// other non-200 status. The is_public decision is left to the caller.
func (c *UpstreamClient) PublicObject(ctx context.Context, objectID int) (*ObjectMetadata, error) {
	url := fmt.Sprintf("%s/storage/objects/%d/public", c.baseURL, objectID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil, ErrObjectNotFound
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &UpstreamError{StatusCode: resp.StatusCode}
	}

	var meta ObjectMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("decode metadata: %w", err)}
	}

	return &meta, nil
}
