// Package mock provides a test double for the vision.Describer interface.
package mock

import (
	"context"
	"sync"

	"github.com/animus-ai/animus/pkg/provider/vision"
)

// DescribeCall records a single invocation of Describe.
type DescribeCall struct {
	Model  string
	URL    string
	Prompt string
}

// Describer is a mock implementation of vision.Describer.
type Describer struct {
	mu sync.Mutex

	// DescribeFn, when set, computes the result per call. Takes precedence
	// over DescribeResult/DescribeErr.
	DescribeFn func(model, url, prompt string) (string, error)

	// DescribeResult is returned by Describe when DescribeFn is nil.
	DescribeResult string

	// DescribeErr, if non-nil, is returned as the error from Describe.
	DescribeErr error

	// DescribeCalls records every call in order.
	DescribeCalls []DescribeCall
}

// Ensure Describer implements vision.Describer at compile time.
var _ vision.Describer = (*Describer)(nil)

// Describe records the call and returns the configured result.
func (d *Describer) Describe(ctx context.Context, model string, url string, prompt string) (string, error) {
	d.mu.Lock()
	d.DescribeCalls = append(d.DescribeCalls, DescribeCall{Model: model, URL: url, Prompt: prompt})
	fn := d.DescribeFn
	result, err := d.DescribeResult, d.DescribeErr
	d.mu.Unlock()

	if fn != nil {
		return fn(model, url, prompt)
	}
	return result, err
}

// CallCount returns the number of Describe invocations. Thread-safe.
func (d *Describer) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.DescribeCalls)
}
