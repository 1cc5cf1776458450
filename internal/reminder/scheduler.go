package reminder

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/peteat123/Peteat-sub001/internal/domain"
	"github.com/peteat123/Peteat-sub001/internal/metrics"
	"github.com/peteat123/Peteat-sub001/internal/push"
)

var ErrAlreadyRunning = errors.New("reminder run already in progress")

type BookingStore interface {
	Upcoming(ctx context.Context, from, to time.Time, statuses []string) ([]domain.Booking, error)
}

// Locker provides a cross-instance single-flight guard. Acquire returns
// false when another holder owns the lock.
type Locker interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

type Config struct {
	Interval time.Duration
	Window   time.Duration
	LockTTL  time.Duration
}

type Result struct {
	StartedAt  time.Time `json:"started_at"`
	Bookings   int       `json:"bookings"`
	Dispatched int       `json:"dispatched"`
}

type Scheduler struct {
	bookings BookingStore
	pusher   push.Sender
	lock     Locker
	cfg      Config
	log      *zap.Logger
	now      func() time.Time

	running atomic.Bool
	started atomic.Bool
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewScheduler(bookings BookingStore, pusher push.Sender, lock Locker, cfg Config, log *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	return &Scheduler{
		bookings: bookings,
		pusher:   pusher,
		lock:     lock,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start fires RunOnce every Interval until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				if _, err := s.RunOnce(ctx); err != nil {
					if errors.Is(err, ErrAlreadyRunning) {
						s.log.Info("reminder tick skipped, previous run still active")
						continue
					}
					s.log.Error("reminder run failed", zap.Error(err))
				}
			}
		}
	}()
}

// Stop ends the loop and waits for it. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	if s.started.Load() {
		<-s.done
	}
}

// RunOnce performs one sweep. Overlapping calls return ErrAlreadyRunning.
func (s *Scheduler) RunOnce(ctx context.Context) (res Result, err error) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.ReminderRuns.WithLabelValues("skipped").Inc()
		return Result{}, ErrAlreadyRunning
	}
	defer s.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reminder run panicked: %v", r)
		}
		if err != nil && !errors.Is(err, ErrAlreadyRunning) {
			metrics.ReminderRuns.WithLabelValues("failed").Inc()
		}
	}()

	if s.lock != nil {
		ok, lerr := s.lock.Acquire(ctx, s.cfg.LockTTL)
		if lerr != nil {
			return Result{}, fmt.Errorf("acquire reminder lock: %w", lerr)
		}
		if !ok {
			metrics.ReminderRuns.WithLabelValues("skipped").Inc()
			return Result{}, ErrAlreadyRunning
		}
		defer func() {
			if rerr := s.lock.Release(context.WithoutCancel(ctx)); rerr != nil {
				s.log.Warn("reminder lock release failed", zap.Error(rerr))
			}
		}()
	}

	res, err = s.sweep(ctx)
	if err == nil {
		metrics.ReminderRuns.WithLabelValues("ok").Inc()
	}
	return res, err
}

func (s *Scheduler) sweep(ctx context.Context) (Result, error) {
	now := s.now()
	res := Result{StartedAt: now.UTC()}

	bookings, err := s.bookings.Upcoming(ctx, now, now.Add(s.cfg.Window), domain.ActiveBookingStatuses)
	if err != nil {
		return res, fmt.Errorf("query upcoming bookings: %w", err)
	}

	for i := range bookings {
		b := &bookings[i]
		if !Due(b, now, s.cfg.Window) {
			continue
		}
		res.Bookings++
		users := b.Participants()
		if len(users) == 0 {
			continue
		}
		s.pusher.SendToUsers(ctx, users, Payload(b))
		res.Dispatched++
	}
	s.log.Info("reminder run finished", zap.Int("bookings", res.Bookings), zap.Int("dispatched", res.Dispatched))
	return res, nil
}

// Due reports whether b is active and scheduled within [now, now+window].
func Due(b *domain.Booking, now time.Time, window time.Duration) bool {
	return slices.Contains(domain.ActiveBookingStatuses, b.Status) &&
		!b.ScheduledAt.Before(now) && !b.ScheduledAt.After(now.Add(window))
}

// Payload formats the reminder for b.
func Payload(b *domain.Booking) push.Payload {
	what := "your appointment"
	if b.PetName != "" {
		what = b.PetName + "'s appointment"
	}
	if b.Service != "" {
		what += " (" + b.Service + ")"
	}
	return push.Payload{
		Title: "Appointment reminder",
		Body:  fmt.Sprintf("Reminder: %s is on %s.", what, b.ScheduledAt.UTC().Format("Mon Jan 2, 15:04 MST")),
		Data: map[string]string{
			"type":      "booking_reminder",
			"bookingId": b.ID,
		},
	}
}
