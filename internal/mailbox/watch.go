package mailbox

import (
	"context"
	"errors"
	"sort"
	"time"

	"neuromail-go/internal/events"
	"neuromail-go/internal/monitoring"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Watch enables new-mail polling for inboxID. Mail already present is
// loaded first so it is not reported as new.
func (s *Service) Watch(ctx context.Context, inboxID string) error {
	existing, err := s.Emails(ctx, inboxID, false)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		seen[EmailKey(e)] = struct{}{}
	}

	s.mu.Lock()
	if prev, ok := s.watched[inboxID]; ok {
		for k := range prev {
			seen[k] = struct{}{}
		}
	}
	s.watched[inboxID] = seen
	s.mu.Unlock()
	log.WithField("inbox_id", inboxID).Debug("watching inbox")
	return nil
}

// Unwatch stops polling inboxID.
func (s *Service) Unwatch(inboxID string) {
	s.mu.Lock()
	delete(s.watched, inboxID)
	s.mu.Unlock()
}

// Watched lists polled inboxes in sorted order.
func (s *Service) Watched() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.watched))
	for id := range s.watched {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// PollOnce asks every watched inbox for its latest message and publishes
// the ones not seen before. Wait timeouts and other errors are skipped.
func (s *Service) PollOnce(ctx context.Context) int {
	found := 0
	for _, inboxID := range s.Watched() {
		if ctx.Err() != nil {
			break
		}
		email, err := s.api.WaitForLatestEmail(ctx, inboxID, s.opts.WaitTimeout)
		if err != nil {
			log.WithError(err).WithField("inbox_id", inboxID).Debug("no new email")
			continue
		}
		if email == nil || (email.ID == "" && email.Subject == "" && email.Body == "") {
			continue
		}

		key := EmailKey(*email)
		s.mu.Lock()
		seen, ok := s.watched[inboxID]
		_, dup := seen[key]
		if ok && !dup {
			seen[key] = struct{}{}
			if entry, cached := s.cache[inboxID]; cached {
				entry.emails, _ = Deduplicate(append(entry.emails, *email))
			}
		}
		s.mu.Unlock()

		if !ok || dup {
			continue
		}
		found++
		monitoring.NewEmailsTotal.Inc()
		log.WithFields(log.Fields{"inbox_id": inboxID, "email_id": email.ID}).Info("new email")
		s.publish(ctx, events.TopicNewEmail, NewEmailEvent{InboxID: inboxID, Email: *email})
	}
	return found
}

// Run drives the background tasks until ctx is cancelled: new-mail polling,
// connection checks and cache sweeps.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return every(ctx, s.opts.PollInterval, func() { s.PollOnce(ctx) })
	})
	g.Go(func() error {
		return every(ctx, s.opts.ConnectionCheckInterval, func() { s.Connection(ctx) })
	})
	g.Go(func() error {
		return every(ctx, s.opts.SweepInterval, func() {
			if n := s.SweepExpired(); n > 0 {
				log.WithField("entries", n).Debug("expired email cache swept")
			}
		})
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func every(ctx context.Context, interval time.Duration, fn func()) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn()
		}
	}
}
