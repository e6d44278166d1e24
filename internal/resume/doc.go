// Package resume persists the progress cursor of a crawl run.
//
// The cursor is the index of the next input line to process, stored as a
// decimal string under a single key in a gocloud.dev/blob bucket. Any bucket
// URL gocloud understands works (file://, s3://, gs://, mem://).
//
// # Usage
//
//	tracker := resume.NewTracker(bucket, "state")
//
//	cursor, err := tracker.Load(ctx)       // 0 when no state exists yet
//	if i < cursor { /* already processed */ }
//	err = tracker.Save(ctx, i)             // never moves backwards
//
// A cursor of k means lines 0..k-1 are done and line k is the first one a
// restarted run will process.
package resume
