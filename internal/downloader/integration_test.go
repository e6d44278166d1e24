//go:build integration

package downloader

import (
	"context"
	"strings"
	"testing"
	"time"

	_ "gocloud.dev/blob/s3blob"

	crawlhttp "github.com/extua/itchy-crawler/internal/http"
	"github.com/extua/itchy-crawler/internal/pacing"
	"github.com/extua/itchy-crawler/internal/resume"
	"github.com/extua/itchy-crawler/internal/retry"
	"github.com/extua/itchy-crawler/internal/store"
	"github.com/extua/itchy-crawler/internal/targets"
	"github.com/extua/itchy-crawler/internal/testutils"
)

func TestIntegrationMinio(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	site := testutils.StartSite(t, map[string]*testutils.Page{
		"/games/one":           {Body: []byte("<html>one</html>")},
		"/games/one/data.json": {Body: []byte(`{"id":1}`)},
		"/games/two":           {Body: []byte("<html>two</html>"), RateLimited: 2},
		"/games/two/data.json": {Body: []byte(`{"id":2}`), RateLimited: 1, RetryAfter: 1},
		"/games/three":         {Body: []byte("<html>three</html>")},
	})

	t.Log("Starting Minio container...")
	minio := testutils.StartMinioContainer(t, ctx, "crawl-out")
	defer func() {
		if err := minio.Close(ctx); err != nil {
			t.Logf("failed to terminate minio container: %v", err)
		}
	}()

	bkt, err := minio.OpenBucket(ctx)
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	defer bkt.Close()

	list, err := targets.Read(strings.NewReader(strings.Join([]string{
		site.URL + "/games/one",
		site.URL + "/games/two",
		site.URL + "/games/three",
	}, "\n")))
	if err != nil {
		t.Fatalf("read targets: %v", err)
	}

	tracker := resume.NewTracker(bkt, "crawl/state")
	pacer := pacing.New(pacing.DefaultOptions())
	opts := Options{
		Fetcher: retry.New(crawlhttp.NewClient(crawlhttp.DefaultOptions()), retry.Options{}),
		Pacer:   pacer,
		Tracker: tracker,
		Storage: store.New(bkt, "crawl/"),
	}

	summary, err := Run(ctx, list, opts)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if summary.Processed != 3 {
		t.Errorf("processed = %d, want 3", summary.Processed)
	}
	if summary.Stored != 5 {
		t.Errorf("stored = %d, want 5", summary.Stored)
	}
	if len(summary.Failures) != 1 || summary.Failures[0].Index != 2 || summary.Failures[0].Resource != ResourceData {
		t.Errorf("failures = %+v, want one data failure at index 2", summary.Failures)
	}
	if pacer.Ratchet() <= pacer.Floor() {
		t.Errorf("ratchet %v should exceed floor %v after retried fetches", pacer.Ratchet(), pacer.Floor())
	}

	for key, want := range map[string]string{
		"crawl/0.html": "<html>one</html>",
		"crawl/0.json": `{"id":1}`,
		"crawl/1.html": "<html>two</html>",
		"crawl/1.json": `{"id":2}`,
		"crawl/2.html": "<html>three</html>",
	} {
		got, err := bkt.ReadAll(ctx, key)
		if err != nil {
			t.Fatalf("read %s: %v", key, err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}

	cursor, err := resume.NewTracker(bkt, "crawl/state").Load(ctx)
	if err != nil {
		t.Fatalf("load cursor: %v", err)
	}
	if cursor != 3 {
		t.Errorf("cursor = %d, want 3", cursor)
	}

	if got := site.Requests("/games/two"); got != 3 {
		t.Errorf("/games/two requested %d times, want 3", got)
	}
	for _, ua := range site.UserAgents() {
		if ua != crawlhttp.DefaultUserAgent {
			t.Errorf("unexpected User-Agent %q", ua)
		}
	}

	// A second run against the same state does nothing.
	before := site.Requests("/games/one")
	if _, err := Run(ctx, list, Options{
		Fetcher: opts.Fetcher,
		Pacer:   pacer,
		Tracker: resume.NewTracker(bkt, "crawl/state"),
		Storage: opts.Storage,
	}); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := site.Requests("/games/one"); got != before {
		t.Errorf("second run refetched /games/one")
	}
}
