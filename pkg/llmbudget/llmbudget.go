package llmbudget

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/agentcoord/core/internal/corelog"
	"github.com/agentcoord/core/pkg/coreerr"
	"github.com/agentcoord/core/pkg/kv"
	"github.com/rs/zerolog"
)

const semaphoreKey = "llm:semaphore"

func tokensKey(model string) string     { return "llm:costs:tokens:" + model }
func dollarsKey(model string) string    { return "llm:costs:dollars:" + model }
func byAgentKey(agentID string) string  { return "llm:costs:by_agent:" + agentID }

// dailyKey buckets daily spend by calendar date (UTC), so the budget
// resets naturally when the date rolls over rather than needing an
// explicit reset job.
func dailyKey(day string) string { return "llm:costs:daily:" + day }

// Release returns the acquired slot to the semaphore.
type Release func(ctx context.Context) error

// Config is the semaphore's policy.
type Config struct {
	// Capacity is the maximum number of concurrent in-flight LLM
	// calls allowed process-wide.
	Capacity int
	// DailyBudgetDollars caps cumulative spend per UTC calendar day;
	// zero means unlimited.
	DailyBudgetDollars float64
	// PollInterval is how often AcquireSlot retries while blocked,
	// either on a full semaphore or a CAS race. Default 200ms.
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 200 * time.Millisecond
	}
	return c
}

// Semaphore enforces Config.Capacity concurrent LLM calls and tracks
// spend against Config.DailyBudgetDollars (spec §5 "LLM budget").
type Semaphore struct {
	backend kv.Backend
	cfg     Config
	logger  zerolog.Logger
}

// New creates a Semaphore over backend.
func New(backend kv.Backend, cfg Config) *Semaphore {
	return &Semaphore{
		backend: backend,
		cfg:     cfg.withDefaults(),
		logger:  corelog.WithComponent("llmbudget"),
	}
}

// AcquireSlot blocks until a slot is free and returns a Release, until
// ctx is canceled or timeout elapses. If the daily budget is already
// exhausted, it fails immediately with coreerr.BudgetExceeded instead
// of waiting for a slot that would be pointless once granted.
func (s *Semaphore) AcquireSlot(ctx context.Context, timeout time.Duration) (Release, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		exhausted, err := s.dailyBudgetExhausted(ctx)
		if err != nil {
			return nil, err
		}
		if exhausted {
			return nil, coreerr.New(coreerr.BudgetExceeded, "daily LLM spend budget exhausted")
		}

		acquired, err := s.tryAcquire(ctx)
		if err != nil {
			return nil, err
		}
		if acquired {
			return s.release, nil
		}

		if time.Now().After(deadline) {
			return nil, coreerr.New(coreerr.Timeout, "timed out waiting for an LLM call slot")
		}

		select {
		case <-ctx.Done():
			return nil, coreerr.Wrap(coreerr.Timeout, "acquire slot canceled", ctx.Err())
		case <-ticker.C:
		}
	}
}

// tryAcquire makes one attempt to increment the semaphore under cap,
// via read/CASSet retry — kv.Backend has no compare-and-increment
// primitive, so this emulates it with optimistic concurrency the way
// spec §5 allows ("watch + retry").
func (s *Semaphore) tryAcquire(ctx context.Context) (bool, error) {
	raw, ok, err := s.backend.Get(ctx, semaphoreKey)
	if err != nil {
		return false, err
	}
	cur := int64(0)
	if ok {
		cur, err = strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return false, fmt.Errorf("llmbudget: corrupt semaphore value %q: %w", raw, err)
		}
	}
	if cur >= int64(s.cfg.Capacity) {
		return false, nil
	}

	next := []byte(strconv.FormatInt(cur+1, 10))
	var expected []byte
	if ok {
		expected = raw
	}
	return s.backend.CASSet(ctx, semaphoreKey, expected, next)
}

func (s *Semaphore) release(ctx context.Context) error {
	if _, err := s.backend.Decr(ctx, semaphoreKey); err != nil {
		return err
	}
	return nil
}

// RecordUsage logs one LLM call's cost against the model, agent, and
// today's running total (spec §5: "a separate cost counter tracks
// spend by model and agent for observability").
func (s *Semaphore) RecordUsage(ctx context.Context, agentID, model string, tokens int64, dollars float64) error {
	if _, err := s.backend.IncrBy(ctx, tokensKey(model), tokens); err != nil {
		return err
	}
	if err := s.addFloat(ctx, dollarsKey(model), dollars); err != nil {
		return err
	}
	if _, err := s.backend.HIncrBy(ctx, byAgentKey(agentID), "tokens", tokens); err != nil {
		return err
	}
	// Dollar totals in the per-agent hash are tracked in
	// micro-dollars (dollars * 1e6) so HIncrBy's int64 arithmetic
	// stays exact; GetAgentTotals converts back to float on read.
	if _, err := s.backend.HIncrBy(ctx, byAgentKey(agentID), "micros", int64(dollars*1e6)); err != nil {
		return err
	}
	return s.addFloat(ctx, dailyKey(today()), dollars)
}

// AgentTotals is one agent's cumulative LLM usage.
type AgentTotals struct {
	Tokens  int64
	Dollars float64
}

// GetAgentTotals returns agentID's cumulative usage.
func (s *Semaphore) GetAgentTotals(ctx context.Context, agentID string) (AgentTotals, error) {
	fields, err := s.backend.HGetAll(ctx, byAgentKey(agentID))
	if err != nil {
		return AgentTotals{}, err
	}
	var totals AgentTotals
	if raw, ok := fields["tokens"]; ok {
		totals.Tokens, _ = strconv.ParseInt(string(raw), 10, 64)
	}
	if raw, ok := fields["micros"]; ok {
		micros, _ := strconv.ParseInt(string(raw), 10, 64)
		totals.Dollars = float64(micros) / 1e6
	}
	return totals, nil
}

func (s *Semaphore) dailyBudgetExhausted(ctx context.Context) (bool, error) {
	if s.cfg.DailyBudgetDollars <= 0 {
		return false, nil
	}
	spent, err := s.getFloat(ctx, dailyKey(today()))
	if err != nil {
		return false, err
	}
	return spent >= s.cfg.DailyBudgetDollars, nil
}

func (s *Semaphore) getFloat(ctx context.Context, key string) (float64, error) {
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("llmbudget: corrupt float value at %s: %w", key, err)
	}
	return v, nil
}

// addFloat adds delta to the float counter at key via read/CASSet
// retry, the same optimistic-concurrency pattern tryAcquire uses.
func (s *Semaphore) addFloat(ctx context.Context, key string, delta float64) error {
	for {
		raw, ok, err := s.backend.Get(ctx, key)
		if err != nil {
			return err
		}
		cur := 0.0
		if ok {
			cur, err = strconv.ParseFloat(string(raw), 64)
			if err != nil {
				return fmt.Errorf("llmbudget: corrupt float value at %s: %w", key, err)
			}
		}

		next := []byte(strconv.FormatFloat(cur+delta, 'f', -1, 64))
		var expected []byte
		if ok {
			expected = raw
		}
		done, err := s.backend.CASSet(ctx, key, expected, next)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}
