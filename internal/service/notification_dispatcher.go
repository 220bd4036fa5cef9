package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/fyp-go-api/internal/observability"
	"github.com/noah-isme/fyp-go-api/internal/repository"
	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

const dispatchTimeout = 30 * time.Second

// NotificationDispatcher delivers committed intents on a bounded worker pool.
// Delivery failures are logged and counted, never returned to the caller.
type NotificationDispatcher struct {
	projects repository.ProjectRepository
	users    repository.UserRepository
	notifier NotificationPort
	mailer   EmailPort
	logger   zerolog.Logger
	workers  int

	mu     sync.RWMutex
	queue  chan Outbound
	closed bool
	wg     sync.WaitGroup
}

// NewNotificationDispatcher constructs a dispatcher. mailer may be nil.
func NewNotificationDispatcher(projects repository.ProjectRepository, users repository.UserRepository, notifier NotificationPort, mailer EmailPort, workers, buffer int, logger zerolog.Logger) *NotificationDispatcher {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &NotificationDispatcher{
		projects: projects,
		users:    users,
		notifier: notifier,
		mailer:   mailer,
		logger:   logger.With().Str("component", "notification_dispatcher").Logger(),
		workers:  workers,
		queue:    make(chan Outbound, buffer),
	}
}

// Start launches the workers. Queued items are still delivered after ctx ends.
func (d *NotificationDispatcher) Start(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for item := range d.queue {
				d.Dispatch(base, item)
			}
		}()
	}
}

// Publish enqueues items without blocking. Items are dropped when the queue is full.
func (d *NotificationDispatcher) Publish(_ context.Context, items ...Outbound) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, item := range items {
		if d.closed {
			d.drop(item, "dispatcher stopped")
			continue
		}
		select {
		case d.queue <- item:
		default:
			d.drop(item, "dispatch queue full")
		}
	}
}

// Stop refuses new items and waits for queued items to be delivered.
func (d *NotificationDispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *NotificationDispatcher) drop(item Outbound, reason string) {
	observability.NotificationDispatchFailures().WithLabelValues("queue").Inc()
	d.logger.Warn().
		Str("event", item.Intent.Event).
		Uint("project_id", item.ProjectID).
		Uint("submission_id", item.SubmissionID).
		Msg(reason)
}

// Dispatch resolves the audience of item and delivers it synchronously.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, item Outbound) {
	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	log := d.logger.With().
		Str("event", item.Intent.Event).
		Uint("project_id", item.ProjectID).
		Uint("submission_id", item.SubmissionID).
		Logger()

	recipients, err := d.Recipients(ctx, item.ProjectID, item.Intent.Audience)
	if err != nil {
		observability.NotificationDispatchFailures().WithLabelValues("resolve").Inc()
		log.Error().Err(err).Msg("failed to resolve notification audience")
		return
	}
	if len(recipients) == 0 {
		log.Debug().Msg("notification has no recipients")
		return
	}

	payload := make(map[string]interface{}, len(item.Intent.Payload)+1)
	for key, value := range item.Intent.Payload {
		payload[key] = value
	}
	payload["project_id"] = item.ProjectID

	for _, userID := range recipients {
		if err := d.notifier.Notify(ctx, userID, item.Intent.Event, payload); err != nil {
			observability.NotificationDispatchFailures().WithLabelValues("notify").Inc()
			log.Warn().Err(err).Uint("user_id", userID).Msg("failed to notify user")
		}
	}

	if d.mailer == nil || d.users == nil {
		return
	}

	users, err := d.users.FindByIDs(ctx, recipients)
	if err != nil {
		observability.NotificationDispatchFailures().WithLabelValues("email").Inc()
		log.Warn().Err(err).Msg("failed to load email recipients")
		return
	}
	emails := make([]string, 0, len(users))
	for _, user := range users {
		if user.Email != "" {
			emails = append(emails, user.Email)
		}
	}
	if len(emails) == 0 {
		return
	}
	if err := d.mailer.SendTemplatedEmail(ctx, emails, item.Intent.Event, payload); err != nil {
		observability.NotificationDispatchFailures().WithLabelValues("email").Inc()
		log.Warn().Err(err).Int("recipients", len(emails)).Msg("failed to send notification email")
	}
}

// Recipients maps audience roles to the user ids of one project, without duplicates.
func (d *NotificationDispatcher) Recipients(ctx context.Context, projectID uint, audience []workflow.Role) ([]uint, error) {
	project, err := d.projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, notFound(err, ErrProjectNotFound)
	}

	seen := make(map[uint]struct{})
	out := make([]uint, 0, len(audience))
	add := func(id uint) {
		if id == 0 {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	for _, role := range audience {
		switch role {
		case workflow.RoleSupervisor:
			add(project.SupervisorID)
		case workflow.RoleGroupLeader:
			add(project.GroupLeaderID)
		case workflow.RoleCommittee:
			ids, err := d.projects.CommitteeIDs(ctx, project.ID)
			if err != nil {
				return nil, err
			}
			for _, id := range ids {
				add(id)
			}
		}
	}
	return out, nil
}
