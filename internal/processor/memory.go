package processor

import (
	"context"
	"fmt"
	"sync"
)

type outcome struct {
	result *Result
	err    error
}

// Memory is an in-process processor used by local development and tests. It
// honors idempotency keys the way a real processor does and can be scripted
// to fail specific instrument tokens.
type Memory struct {
	mu      sync.Mutex
	charges map[string]outcome
	payouts map[string]outcome
	scripts map[string][]error
	seq     uint64
}

func NewMemory() *Memory {
	return &Memory{
		charges: make(map[string]outcome),
		payouts: make(map[string]outcome),
		scripts: make(map[string][]error),
	}
}

// EnqueueChargeError scripts the next charge against token to fail with err.
// Scripted errors are consumed in order; once the queue drains, charges
// succeed again.
func (m *Memory) EnqueueChargeError(token string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[token] = append(m.scripts[token], err)
}

func (m *Memory) Charge(_ context.Context, req ChargeRequest) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prior, ok := m.charges[req.IdempotencyKey]; ok {
		return prior.result, prior.err
	}

	if queue := m.scripts[req.InstrumentToken]; len(queue) > 0 {
		err := queue[0]
		m.scripts[req.InstrumentToken] = queue[1:]
		m.charges[req.IdempotencyKey] = outcome{err: err}
		return nil, err
	}

	m.seq++
	res := &Result{Reference: fmt.Sprintf("ch_%d", m.seq)}
	m.charges[req.IdempotencyKey] = outcome{result: res}
	return res, nil
}

func (m *Memory) Payout(_ context.Context, req PayoutRequest) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prior, ok := m.payouts[req.IdempotencyKey]; ok {
		return prior.result, prior.err
	}

	m.seq++
	res := &Result{Reference: fmt.Sprintf("po_%d", m.seq)}
	m.payouts[req.IdempotencyKey] = outcome{result: res}
	return res, nil
}

// ChargeCount reports how many distinct charges were executed.
func (m *Memory) ChargeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.charges)
}
