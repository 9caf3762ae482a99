package supabase

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
)

// Bucket scopes storage operations to one bucket.
type Bucket struct {
	client *Client
	name   string
}

// Storage returns a handle on a storage bucket.
func (c *Client) Storage(bucket string) *Bucket {
	return &Bucket{client: c, name: bucket}
}

// Upload stores data at path, overwriting any existing object.
func (b *Bucket) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	reqURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", b.client.baseURL, b.name, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")
	return b.client.do(req, nil)
}

// PublicURL returns the public URL of the object at path.
func (b *Bucket) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", b.client.baseURL, b.name, path)
}
