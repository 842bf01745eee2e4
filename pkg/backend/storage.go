package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Upload stores data at bucket/path. Existing objects are not overwritten.
func (c *Client) Upload(ctx context.Context, bucket, path, contentType string, data []byte) error {
	return c.do(ctx, request{
		service:     "storage",
		method:      http.MethodPost,
		path:        "/storage/v1/object/" + bucket + "/" + escapePath(path),
		raw:         data,
		contentType: contentType,
		header: map[string]string{
			"x-upsert":      "false",
			"cache-control": "max-age=3600",
		},
	}, nil)
}

// PublicURL returns the public address of an object in a public bucket.
func (c *Client) PublicURL(bucket, path string) string {
	return c.baseURL + "/storage/v1/object/public/" + bucket + "/" + escapePath(path)
}

// Remove deletes objects from bucket.
func (c *Client) Remove(ctx context.Context, bucket string, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	return c.do(ctx, request{
		service: "storage",
		method:  http.MethodDelete,
		path:    "/storage/v1/object/" + bucket,
		body:    map[string][]string{"prefixes": paths},
	}, nil)
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}
