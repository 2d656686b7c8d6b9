package sink

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"

	"secret-santa/contract"
	"secret-santa/domain"
	"secret-santa/errors"
)

const (
	DefaultMaxWorkers      = 8
	DefaultDeliveryTimeout = 10 * time.Second
)

// Report is the outcome of one fan-out. Delivered is the success count shown to the caller.
type Report struct {
	Delivered int
	Failed    map[domain.UserID]error
}

func (r Report) Total() int {
	return r.Delivered + len(r.Failed)
}

type delivery struct {
	userID domain.UserID
	err    error
}

// Dispatcher delivers one message per recipient through a bounded pool.
// Deliveries are independent: a slow or failing recipient never blocks or fails the others.
type Dispatcher struct {
	notifier   contract.Notifier
	log        *slog.Logger
	maxWorkers int
	timeout    time.Duration
}

func NewDispatcher(notifier contract.Notifier, log *slog.Logger, maxWorkers int, timeout time.Duration) *Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	return &Dispatcher{notifier: notifier, log: log, maxWorkers: maxWorkers, timeout: timeout}
}

// NotifyAll sends messageFor(id) to every distinct recipient.
// Every message is built before the first send; an empty one, or an invalid recipient,
// is a caller bug and aborts the whole batch with nothing sent.
// Individual delivery failures never produce an error, they are only counted in the report.
func (d *Dispatcher) NotifyAll(
	ctx context.Context,
	recipients []domain.UserID,
	messageFor func(domain.UserID) domain.Message,
) (Report, error) {
	recipients = lo.Uniq(recipients)
	messages := make(map[domain.UserID]domain.Message, len(recipients))
	for _, userID := range recipients {
		if userID == 0 {
			return Report{}, errors.ErrInvalidRecipient
		}
		msg := messageFor(userID)
		if strings.TrimSpace(msg.Text) == "" {
			return Report{}, fmt.Errorf("%w: recipient %d", errors.ErrEmptyContent, userID)
		}
		messages[userID] = msg
	}

	p := pool.NewWithResults[delivery]().WithMaxGoroutines(d.maxWorkers)
	for _, userID := range recipients {
		msg := messages[userID]
		p.Go(func() delivery {
			return delivery{userID: userID, err: d.deliver(ctx, userID, msg)}
		})
	}

	report := Report{Failed: map[domain.UserID]error{}}
	for _, res := range p.Wait() {
		if res.err != nil {
			report.Failed[res.userID] = res.err
			d.log.Warn("Delivery failed", "user", res.userID, "error", res.err)
			continue
		}
		report.Delivered++
	}
	d.log.Info("Notifications dispatched", "delivered", report.Delivered, "failed", len(report.Failed))
	return report, nil
}

// deliver converts a panic of the notifier into a failed delivery.
func (d *Dispatcher) deliver(ctx context.Context, userID domain.UserID, msg domain.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", errors.ErrDeliveryFailed, r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if _, err := d.notifier.SendText(ctx, userID, msg); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrDeliveryFailed, err)
	}
	return nil
}
