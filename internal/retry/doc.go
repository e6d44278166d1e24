// Package retry wraps a single logical fetch in a bounded, rate-limit aware
// backoff loop.
//
// Each fetch runs a small state machine:
//
//	Attempting --2xx-----------------------------> Succeeded
//	Attempting --429 / Retry-After (in schedule)--> BackingOff --> Attempting
//	Attempting --other status, exhausted, fault--> Failed
//
// Transport outcomes are classified by [Policy.Classify] in a fixed precedence
// order. A 429 consumes the next entry of the backoff schedule; a Retry-After
// header on any other status is honoured as header+1 seconds when it is a sane
// integer, and counted without sleeping otherwise. Every other non-2xx status
// fails immediately.
//
// # Errors
//
//   - [ErrRateLimited]: rate-limit signals outlasted the schedule
//   - [*StatusError]: a non-retryable status, matching [ErrClientError] or
//     [ErrServerError] with errors.Is
//   - [ErrTransport]: no response was obtained
//   - [ErrBodyTooLarge]: a 2xx body exceeded the transport's size limit
package retry
