/*
Package llmbudget is the LLM budget semaphore described in spec §5 as
"adjacent to core": a process-wide cap on concurrent outbound LLM API
calls, plus cost counters for observability and a daily spend cap.

AcquireSlot increments llm:semaphore only while it's under capacity,
emulating the compare-and-swap-under-a-cap pattern spec §5's
shared-resource policy calls for ("emulated via optimistic concurrency
(watch + retry)") with a read/CASSet retry loop, a loop of the same
shape as pkg/approval's WaitForDecision poll loop. A
request against an exhausted daily budget fails immediately with
BudgetExceeded rather than blocking for a slot that would just be
refused anyway (spec §5: "exceeding a daily budget fails slot
acquisition rather than interrupting a call in flight").
*/
package llmbudget
