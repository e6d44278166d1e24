// Package progress provides progress reporting for crawl runs.
//
// This package outputs human-readable progress information, including items
// processed, bytes stored, failures, the current pacing baseline and an ETA.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    TotalItems: len(list.Targets),
//	    Output:     os.Stderr,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	reporter.ItemStarted()
//	reporter.FetchCompleted(len(body))
//	reporter.ItemDone()
//
// # Output Format
//
//	[itchy] Crawling: urls (1200 targets)
//	[itchy] Progress: 35.2% | 412/1170 items | 30 skipped | 3 failed | 18.4 MiB | Rate: 0.8/s | Pace: 45ms | ETA: 15m 47s
package progress
