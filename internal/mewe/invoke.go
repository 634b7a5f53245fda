package mewe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/google/go-querystring/query"
)

// invokeGet wraps a GET with session refresh and the retry-once policy.
// payload may be nil, a url.Values (next-page query strings come back from
// the API pre-encoded) or a struct with `url` tags.
func (c *Client) invokeGet(ctx context.Context, endpoint string, payload any, out any) error {
	values, err := queryValues(payload)
	if err != nil {
		return err
	}
	return c.invoke(ctx, func() (*http.Request, error) {
		target := endpoint
		if len(values) > 0 {
			target += "?" + values.Encode()
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	}, out)
}

// invokePostJSON wraps a POST with a JSON body.
func (c *Client) invokePostJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.invoke(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, out)
}

// invokePostForm wraps a POST with a form-encoded body.
func (c *Client) invokePostForm(ctx context.Context, endpoint string, payload any, out any) error {
	values, err := queryValues(payload)
	if err != nil {
		return err
	}
	encoded := values.Encode()
	return c.invoke(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}, out)
}

// invokePostFile wraps a POST with a single-file multipart body. The file is
// buffered up front so the request can be rebuilt for the 403 retry.
func (c *Client) invokePostFile(ctx context.Context, endpoint, filename, contentType string, r io.Reader, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("failed to read upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return err
	}
	body := buf.Bytes()

	return c.invoke(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	}, out)
}

// invoke refreshes the session, performs the request, and on a 403 forces one
// refresh and retries exactly once. A second 403 means the session is beyond
// saving and the user needs fresh cookies.
func (c *Client) invoke(ctx context.Context, build func() (*http.Request, error), out any) error {
	if err := c.RefreshSession(ctx); err != nil {
		return err
	}

	retried, err := c.doOnce(build, out)
	if !retried || err == nil {
		return err
	}

	if err := c.refreshSession(ctx, true); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionDead, err)
	}
	if retried, err = c.doOnce(build, out); err != nil && retried {
		return fmt.Errorf("%w: %v", ErrSessionDead, err)
	}
	return err
}

// doOnce performs a single attempt. The bool result reports whether the
// failure looked like a dead session and is worth one forced refresh.
func (c *Client) doOnce(build func() (*http.Request, error), out any) (bool, error) {
	req, err := build()
	if err != nil {
		return false, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		var apiErr apiError
		_ = json.Unmarshal(body, &apiErr)
		forbidden := resp.StatusCode == http.StatusForbidden || apiErr.Message == "Forbidden"

		return forbidden, &StatusError{
			StatusCode: resp.StatusCode,
			Endpoint:   req.URL.Path,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	// Any non-empty response is JSON; empty bodies are fine for state calls.
	if out == nil {
		return false, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("failed to decode %s response: %w", req.URL.Path, err)
	}
	return false, nil
}

// decodeBody decodes a JSON response body regardless of status, used by
// identify where the body is meaningful even on failure.
func decodeBody(resp *http.Response, out any) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

// queryValues normalizes the payload forms invokeGet accepts.
func queryValues(payload any) (url.Values, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case url.Values:
		return v, nil
	default:
		values, err := query.Values(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode query payload: %w", err)
		}
		return values, nil
	}
}
