package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fyp-go-api/internal/dto"
	"github.com/noah-isme/fyp-go-api/internal/repository"
	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

func TestNotificationServiceNotifyStoresAndStreams(t *testing.T) {
	db := setupTestDB(t)
	svc := NewNotificationService(repository.NewNotificationRepository(db), nil, "", nil, newValidator(), zerolog.Nop())
	ctx := context.Background()

	stream, cancel := svc.Subscribe(leaderID)
	defer cancel()

	require.NoError(t, svc.Notify(ctx, leaderID, workflow.EventRevisionRequested, map[string]interface{}{"project_id": 7, "feedback": "redo"}))

	select {
	case received := <-stream:
		require.Equal(t, workflow.EventRevisionRequested, received.Type)
		require.Contains(t, received.Message, "project #7")
	case <-time.After(time.Second):
		t.Fatal("notification was not streamed")
	}

	items, err := svc.List(ctx, leaderID, dto.NotificationListQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.False(t, items[0].Read)
	require.Equal(t, "redo", items[0].Payload["feedback"])

	read, err := svc.MarkRead(ctx, items[0].ID, leaderID)
	require.NoError(t, err)
	require.True(t, read.Read)

	unread, err := svc.List(ctx, leaderID, dto.NotificationListQuery{UnreadOnly: true})
	require.NoError(t, err)
	require.Empty(t, unread)

	_, err = svc.MarkRead(ctx, items[0].ID, supervisorID)
	require.ErrorIs(t, err, ErrNotificationNotFound)

	_, err = svc.MarkAllRead(ctx, 0)
	require.ErrorIs(t, err, workflow.ErrValidation)

	_, err = svc.List(ctx, 0, dto.NotificationListQuery{})
	require.ErrorIs(t, err, workflow.ErrValidation)
}

func TestNotificationServiceMarkAllReadOnlyTouchesOwnInbox(t *testing.T) {
	db := setupTestDB(t)
	svc := NewNotificationService(repository.NewNotificationRepository(db), nil, "", nil, newValidator(), zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Notify(ctx, leaderID, workflow.EventSubmissionApproved, nil))
	}
	require.NoError(t, svc.Notify(ctx, supervisorID, workflow.EventSubmissionCreated, nil))

	items, err := svc.List(ctx, leaderID, dto.NotificationListQuery{})
	require.NoError(t, err)
	_, err = svc.MarkRead(ctx, items[0].ID, leaderID)
	require.NoError(t, err)

	summary, err := svc.Summary(ctx, leaderID)
	require.NoError(t, err)
	require.Equal(t, int64(2), summary.Unread)

	summary, err = svc.MarkAllRead(ctx, leaderID)
	require.NoError(t, err)
	require.Equal(t, dto.NotificationInboxSummary{Unread: 0, Updated: 2}, summary)

	other, err := svc.Summary(ctx, supervisorID)
	require.NoError(t, err)
	require.Equal(t, int64(1), other.Unread)
}

func TestNotificationServiceFansOutAcrossReplicas(t *testing.T) {
	db := setupTestDB(t)
	client := newRedis(t)
	repo := repository.NewNotificationRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	origin := NewNotificationService(repo, client, "fyp:test", nil, newValidator(), zerolog.Nop())
	replica := NewNotificationService(repo, client, "fyp:test", nil, newValidator(), zerolog.Nop())
	origin.Start(ctx)
	replica.Start(ctx)

	stream, unsubscribe := replica.Subscribe(supervisorID)
	defer unsubscribe()

	require.Eventually(t, func() bool {
		if err := origin.Notify(ctx, supervisorID, workflow.EventSubmissionCreated, nil); err != nil {
			return false
		}
		select {
		case received := <-stream:
			return received.Type == workflow.EventSubmissionCreated
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls map[uint][]string
	fail  uint
}

func (n *recordingNotifier) Notify(_ context.Context, userID uint, eventType string, _ map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.calls == nil {
		n.calls = make(map[uint][]string)
	}
	n.calls[userID] = append(n.calls[userID], eventType)
	if userID == n.fail {
		return errors.New("socket closed")
	}
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, events := range n.calls {
		total += len(events)
	}
	return total
}

type recordingMailer struct {
	mu         sync.Mutex
	recipients [][]string
	templates  []string
}

func (m *recordingMailer) SendTemplatedEmail(_ context.Context, recipients []string, template string, _ map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recipients = append(m.recipients, recipients)
	m.templates = append(m.templates, template)
	return nil
}

func TestDispatcherResolvesAudienceWithoutDuplicates(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()
	require.NoError(t, f.deps.Projects.ReplaceCommittee(ctx, f.project.ID, []uint{evaluatorA, supervisorID}))

	dispatcher := NewNotificationDispatcher(f.deps.Projects, f.users, &recordingNotifier{}, nil, 1, 4, zerolog.Nop())

	recipients, err := dispatcher.Recipients(ctx, f.project.ID, []workflow.Role{workflow.RoleSupervisor, workflow.RoleCommittee, workflow.RoleSupervisor})
	require.NoError(t, err)
	require.Equal(t, []uint{supervisorID, evaluatorA}, recipients)

	_, err = dispatcher.Recipients(ctx, 404, []workflow.Role{workflow.RoleSupervisor})
	require.ErrorIs(t, err, ErrProjectNotFound)
}

func TestDispatcherDeliversDespiteFailures(t *testing.T) {
	f := newWorkflowFixture(t)
	notifier := &recordingNotifier{fail: leaderID}
	mailer := &recordingMailer{}
	dispatcher := NewNotificationDispatcher(f.deps.Projects, f.users, notifier, mailer, 2, 8, zerolog.Nop())
	dispatcher.Start(context.Background())

	dispatcher.Publish(context.Background(),
		Outbound{ProjectID: f.project.ID, Intent: workflow.Intent{Event: workflow.EventSubmissionLocked, Audience: []workflow.Role{workflow.RoleGroupLeader, workflow.RoleCommittee}}},
		Outbound{ProjectID: f.project.ID, Intent: workflow.Intent{Event: workflow.EventSubmissionCreated, Audience: []workflow.Role{workflow.RoleSupervisor}}},
		Outbound{ProjectID: 404, Intent: workflow.Intent{Event: workflow.EventDeadlineMissed, Audience: []workflow.Role{workflow.RoleGroupLeader}}},
	)
	dispatcher.Stop()

	require.Equal(t, 4, notifier.count())
	require.Equal(t, []string{workflow.EventSubmissionLocked}, notifier.calls[evaluatorB])

	mailer.mu.Lock()
	defer mailer.mu.Unlock()
	require.Len(t, mailer.templates, 2)
	require.ElementsMatch(t, []string{workflow.EventSubmissionLocked, workflow.EventSubmissionCreated}, mailer.templates)

	dispatcher.Publish(context.Background(), Outbound{ProjectID: f.project.ID})
	require.Equal(t, 4, notifier.count())
}
