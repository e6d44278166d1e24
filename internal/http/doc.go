// Package http provides the single-request transport used by the crawler.
//
// The transport performs exactly one GET per call and never retries: retry and
// backoff policy live in the retry package, which classifies the returned
// [Response].
//
// # Usage
//
//	client := http.NewClient(http.Options{
//	    UserAgent: "itchy-crawler (+mailto:ops@example.org)",
//	    Timeout:   30 * time.Second,
//	})
//
//	resp, err := client.Send(ctx, url)
//	if errors.Is(err, http.ErrTransport) {
//	    // no response was obtained (DNS failure, reset connection, ...)
//	}
//	// resp.StatusCode, resp.Header, resp.Body
package http
