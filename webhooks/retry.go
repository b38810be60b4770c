package webhooks

import (
	"time"

	"github.com/boxyhq/go-dsync/core"
)

const (
	defaultRetryInitial = 30 * time.Second
	defaultRetryMax     = 30 * time.Minute
)

// ExponentialRetryPolicy doubles the delay per attempt up to Max. There is
// no attempt cap here: the drain loop retries indefinitely and escalates
// through the all-failed-batch alert instead of dead-lettering.
type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := p.Initial
	if initial <= 0 {
		initial = defaultRetryInitial
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = defaultRetryMax
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

var _ core.RetryBackoff = ExponentialRetryPolicy{}
