package credential

import (
	"context"
	"sync"
	"time"

	"neuromail-go/internal/constants"
	"neuromail-go/internal/events"

	log "github.com/sirupsen/logrus"
)

// PoolOptions configure thresholds and collaborators of a Pool.
type PoolOptions struct {
	MaxUsage  int
	MaxErrors int
	// Publisher receives reset and exhaustion events. Optional.
	Publisher events.Publisher
	// Now overrides the clock used for LastUsed. Optional.
	Now func() time.Time
}

// Pool owns a fixed roster of interchangeable API keys and rotates between them.
//
// A slot is available until it is marked exhausted; the flag is recomputed on
// every counter mutation and is the only availability signal. When a scan finds
// no available slot the pool resets itself and hands out slot 0.
type Pool struct {
	mu        sync.Mutex
	roster    []*Credential
	cursor    int
	maxUsage  int
	maxErrors int
	resets    int64
	publisher events.Publisher
	now       func() time.Time
}

// NewPool builds a pool over secrets. Blank secrets are skipped; order is kept.
func NewPool(secrets []string, opts PoolOptions) *Pool {
	if opts.MaxUsage <= 0 {
		opts.MaxUsage = constants.DefaultMaxUsagePerCredential
	}
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = constants.DefaultMaxErrorsPerCredential
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	p := &Pool{
		maxUsage:  opts.MaxUsage,
		maxErrors: opts.MaxErrors,
		publisher: opts.Publisher,
		now:       opts.Now,
	}
	for _, s := range secrets {
		if s == "" {
			continue
		}
		p.roster = append(p.roster, &Credential{Secret: s})
	}
	return p
}

// SetPublisher wires the event hub after construction.
func (p *Pool) SetPublisher(pub events.Publisher) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publisher = pub
}

// Size returns the roster length.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.roster)
}

// Thresholds returns the pool-wide usage and error ceilings.
func (p *Pool) Thresholds() (maxUsage, maxErrors int) {
	return p.maxUsage, p.maxErrors
}

// Acquire returns the first available credential at or after the cursor and
// leaves the cursor on it. If every slot is exhausted the pool is reset and
// slot 0 is returned, so a non-empty pool always yields a key.
func (p *Pool) Acquire() (Lease, error) {
	p.mu.Lock()
	n := len(p.roster)
	if n == 0 {
		p.mu.Unlock()
		return Lease{}, ErrEmptyPool
	}

	for attempts := 0; attempts < n; attempts++ {
		cred := p.roster[p.cursor]
		if !cred.Exhausted {
			lease := Lease{Index: p.cursor, Secret: cred.Secret}
			p.mu.Unlock()
			return lease, nil
		}
		p.cursor = (p.cursor + 1) % n
	}

	evt := p.resetLocked(true)
	lease := Lease{Index: p.cursor, Secret: p.roster[p.cursor].Secret, Reset: true}
	pub := p.publisher
	p.mu.Unlock()

	log.WithField("resets", evt.Resets).Warn("all pooled API keys exhausted; pool reset")
	publish(pub, events.TopicPoolReset, evt)
	return lease, nil
}

// RecordUse charges the slot under the cursor with one use, and one error if
// hadError is set.
func (p *Pool) RecordUse(hadError bool) {
	p.mu.Lock()
	if len(p.roster) == 0 {
		p.mu.Unlock()
		return
	}
	evt, spent := p.recordLocked(p.cursor, hadError)
	pub := p.publisher
	p.mu.Unlock()
	if spent {
		p.announceExhausted(pub, evt)
	}
}

// RecordUseAt charges a specific slot, normally the Index of a Lease.
func (p *Pool) RecordUseAt(index int, hadError bool) error {
	p.mu.Lock()
	if index < 0 || index >= len(p.roster) {
		p.mu.Unlock()
		return ErrSlotOutOfRange
	}
	evt, spent := p.recordLocked(index, hadError)
	pub := p.publisher
	p.mu.Unlock()
	if spent {
		p.announceExhausted(pub, evt)
	}
	return nil
}

// Advance moves the cursor one slot forward, wrapping at the end of the roster.
func (p *Pool) Advance() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.roster); n > 0 {
		p.cursor = (p.cursor + 1) % n
		log.WithField("index", p.cursor).Debug("rotated to next pooled API key")
	}
}

// Reset zeroes every counter, clears exhaustion and rewinds the cursor.
func (p *Pool) Reset() {
	p.mu.Lock()
	evt := p.resetLocked(false)
	pub := p.publisher
	p.mu.Unlock()

	log.WithField("resets", evt.Resets).Info("API key pool reset")
	publish(pub, events.TopicPoolReset, evt)
}

func (p *Pool) resetLocked(automatic bool) ResetEvent {
	for _, c := range p.roster {
		c.UsageCount = 0
		c.ErrorCount = 0
		c.Exhausted = false
		c.LastUsed = time.Time{}
	}
	p.cursor = 0
	p.resets++
	return ResetEvent{Automatic: automatic, Resets: p.resets, At: p.now().UTC()}
}

// recordLocked updates counters and reports whether the slot just became exhausted.
func (p *Pool) recordLocked(index int, hadError bool) (ExhaustedEvent, bool) {
	c := p.roster[index]
	c.UsageCount++
	if hadError {
		c.ErrorCount++
	}
	c.LastUsed = p.now()

	if c.Exhausted {
		return ExhaustedEvent{}, false
	}
	if c.UsageCount >= p.maxUsage || c.ErrorCount >= p.maxErrors {
		c.Exhausted = true
		return ExhaustedEvent{
			Index:      index,
			Key:        MaskSecret(c.Secret),
			UsageCount: c.UsageCount,
			ErrorCount: c.ErrorCount,
		}, true
	}
	return ExhaustedEvent{}, false
}

func (p *Pool) announceExhausted(pub events.Publisher, evt ExhaustedEvent) {
	log.WithFields(log.Fields{
		"index":       evt.Index,
		"key":         evt.Key,
		"usage_count": evt.UsageCount,
		"error_count": evt.ErrorCount,
	}).Info("pooled API key exhausted")
	publish(pub, events.TopicCredentialSpent, evt)
}

func publish(pub events.Publisher, topic string, payload any) {
	if pub == nil {
		return
	}
	pub.Publish(context.Background(), topic, payload, nil)
}
