// Package downloader drives a sequential, resumable crawl over a target list.
//
// For each target, in input order, [Run]:
//
//   - loads the progress cursor and skips targets below it
//   - persists the cursor (before the work by default, see [CommitMode])
//   - fetches the page and then target+"/data.json" through the retry
//     controller, storing each body as <cursor>.html and <cursor>.json
//   - sleeps a paced delay after each fetch, feeding retry outcomes back into
//     the pacing ratchet
//
// Exactly one request is in flight at any time. A failed fetch is logged and
// recorded in the [Summary]; the run continues with the next fetch. The run
// stops early only on cancellation, storage or cursor errors, or when the
// optional circuit breaker trips.
//
// # Usage
//
//	summary, err := downloader.Run(ctx, list, downloader.Options{
//	    Fetcher: retry.New(client, retry.Options{}),
//	    Pacer:   pacing.New(pacing.DefaultOptions()),
//	    Tracker: resume.NewTracker(stateBucket, "state"),
//	    Storage: store.New(outBucket, ""),
//	})
package downloader
