package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/autoschool-chat/internal/directory"
	"github.com/weiawesome/autoschool-chat/internal/domain"
	"github.com/weiawesome/autoschool-chat/internal/kafka"
	"github.com/weiawesome/autoschool-chat/internal/repository"
	"github.com/weiawesome/autoschool-chat/pkg/database"
)

type routedMessage struct {
	msg    *domain.Message
	origin domain.Origin
}

type routedReceipt struct {
	to      string
	receipt *domain.MessagesReadPayload
}

type recordingRouter struct {
	mu       sync.Mutex
	messages []routedMessage
	receipts []routedReceipt
}

func (r *recordingRouter) RouteMessage(_ context.Context, msg *domain.Message, origin domain.Origin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, routedMessage{msg: msg, origin: origin})
}

func (r *recordingRouter) RouteReadReceipt(_ context.Context, to string, receipt *domain.MessagesReadPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = append(r.receipts, routedReceipt{to: to, receipt: receipt})
}

type readEvent struct {
	reader, counterpart string
	count               int64
}

// recordingEvents captures read events and accepts the rest.
type recordingEvents struct {
	kafka.NoopProducer
	mu    sync.Mutex
	reads []readEvent
}

func (e *recordingEvents) MessagesRead(_ context.Context, readerID, counterpartID string, count int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reads = append(e.reads, readEvent{reader: readerID, counterpart: counterpartID, count: count})
	return nil
}

type fixture struct {
	db            *gorm.DB
	repo          *repository.GormMessageRepository
	dir           *directory.GormDirectory
	router        *recordingRouter
	tracker       StatusTracker
	conversations ConversationService
	messaging     MessagingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.New(&database.Config{Driver: "sqlite", FilePath: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, &domain.MessageModel{}, &domain.UserModel{}, &domain.AssignmentModel{}))
	require.NoError(t, db.Create([]domain.UserModel{
		{ID: "u1", FirstName: "Ada", Role: string(domain.RoleCandidate)},
		{ID: "u2", FirstName: "Bo", Role: string(domain.RoleInstructor)},
	}).Error)

	f := &fixture{
		db:     db,
		repo:   repository.NewGormMessageRepository(db, 2*time.Second),
		dir:    directory.NewGormDirectory(db),
		router: &recordingRouter{},
	}
	f.tracker = NewStatusTracker(f.repo, false)
	f.conversations = NewConversationService(f.repo, f.dir, f.dir, nil, 0)
	f.messaging = NewMessagingService(f.repo, f.tracker, f.conversations, f.dir, f.router, nil)
	return f
}

// insert writes a message row directly with a fixed timestamp.
func (f *fixture) insert(t *testing.T, id, from, to string, at time.Time, status domain.Status) {
	t.Helper()
	require.NoError(t, f.db.Create(&domain.MessageModel{
		ID:        id,
		Sender:    from,
		Receiver:  to,
		Content:   id,
		Type:      string(domain.MessageTypeText),
		Status:    string(status),
		CreatedAt: at,
		UpdatedAt: at,
	}).Error)
}

func (f *fixture) count(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&domain.MessageModel{}).Count(&n).Error)
	return n
}
