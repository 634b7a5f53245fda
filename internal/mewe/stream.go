package mewe

import (
	"context"
	"io"
	"net/http"
	"strings"
)

// Stream fetches a media path through the authenticated session and returns
// the raw response for relaying. The caller owns the body. path is relative
// to the site origin, the way media hrefs arrive in API payloads.
//
// Unlike the JSON calls there is no whole-request timeout: large videos take
// longer to transfer than any sane API deadline, so only connection setup and
// the response headers are bounded. Cancel ctx to abort a hung body.
func (c *Client) Stream(ctx context.Context, path string) (*http.Response, error) {
	if err := c.RefreshSession(ctx); err != nil {
		return nil, err
	}

	origin := strings.TrimSuffix(c.base, "/api")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+path, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Endpoint:   path,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return resp, nil
}
