package whatsapp

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/log"
)

var ErrSyncInProgress = errors.New("sync already in progress")

const (
	SyncPhaseGroups   = "groups"
	SyncPhaseContacts = "contacts"
	SyncPhaseDone     = "done"
)

type SyncStatus struct {
	Syncing        bool       `json:"syncing"`
	Phase          string     `json:"phase"`
	Progress       int        `json:"progress"`
	Total          int        `json:"total"`
	ContactsSynced int        `json:"contactsSynced"`
	GroupsSynced   int        `json:"groupsSynced"`
	Completed      bool       `json:"completed"`
	Error          string     `json:"error,omitempty"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
}

type GroupLister interface {
	JoinedGroups(ctx context.Context) ([]GroupInfo, error)
}

// SyncSink is the durable side of a sync. Each call is one upsert.
type SyncSink interface {
	UpsertGroup(ctx context.Context, instance, jid, subject string, participants int) error
	UpsertContact(ctx context.Context, instance, jid, name, pushName string) error
}

// Syncer copies an instance's groups and contacts into durable storage in two
// best-effort phases. It never retries on its own.
type Syncer struct {
	instance string
	mirror   *Mirror
	sink     SyncSink
	onDone   func(SyncStatus)

	mu      sync.Mutex
	status  SyncStatus
	running bool
	cancel  context.CancelFunc
}

func NewSyncer(instance string, mirror *Mirror, sink SyncSink, onDone func(SyncStatus)) *Syncer {
	return &Syncer{instance: instance, mirror: mirror, sink: sink, onDone: onDone}
}

func (s *Syncer) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start runs a sync in the background. It fails fast when one is already running.
func (s *Syncer) Start(parent context.Context, lister GroupLister) error {
	ctx, err := s.begin(parent)
	if err != nil {
		return err
	}
	go s.run(ctx, lister)
	return nil
}

// Run performs a sync and returns its final status.
func (s *Syncer) Run(parent context.Context, lister GroupLister) (SyncStatus, error) {
	ctx, err := s.begin(parent)
	if err != nil {
		return s.Status(), err
	}
	return s.run(ctx, lister), nil
}

func (s *Syncer) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Syncer) begin(parent context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, ErrSyncInProgress
	}
	ctx, cancel := context.WithCancel(parent)
	now := time.Now()
	s.running = true
	s.cancel = cancel
	s.status = SyncStatus{Syncing: true, Phase: SyncPhaseGroups, StartedAt: &now}
	return ctx, nil
}

func (s *Syncer) run(ctx context.Context, lister GroupLister) SyncStatus {
	logger := log.Instance(s.instance).WithField("component", "sync")
	logger.Info("sync started")

	s.syncGroups(ctx, lister, logger)
	s.syncContacts(ctx, logger)

	s.mu.Lock()
	now := time.Now()
	s.status.Syncing = false
	s.status.Phase = SyncPhaseDone
	s.status.Completed = ctx.Err() == nil
	if err := ctx.Err(); err != nil && s.status.Error == "" {
		s.status.Error = err.Error()
	}
	s.status.FinishedAt = &now
	s.running = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	final := s.status
	s.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"groups":   final.GroupsSynced,
		"contacts": final.ContactsSynced,
	}).Info("sync finished")
	if s.onDone != nil {
		s.onDone(final)
	}
	return final
}

func (s *Syncer) syncGroups(ctx context.Context, lister GroupLister, logger *logrus.Entry) {
	if lister == nil {
		s.fail(errors.New("transport unavailable"), logger)
		return
	}
	groups, err := lister.JoinedGroups(ctx)
	if err != nil {
		s.fail(err, logger)
		return
	}

	s.update(func(st *SyncStatus) { st.Total = len(groups); st.Progress = 0 })
	chats := make([]Chat, 0, len(groups))
	for _, g := range groups {
		chats = append(chats, Chat{JID: g.JID, Name: g.Name, Participants: g.Participants})
	}
	s.mirror.UpsertChats(chats)

	for _, g := range groups {
		if ctx.Err() != nil {
			return
		}
		stored, err := s.upsert(ctx, func(ctx context.Context) error {
			return s.sink.UpsertGroup(ctx, s.instance, g.JID, g.Name, g.Participants)
		})
		s.update(func(st *SyncStatus) {
			st.Progress++
			if stored {
				st.GroupsSynced++
			}
		})
		if err != nil {
			logger.WithField("jid", g.JID).WithError(err).Warn("group sync failed")
		}
	}
}

func (s *Syncer) syncContacts(ctx context.Context, logger *logrus.Entry) {
	if ctx.Err() != nil {
		return
	}
	candidates := s.mirror.ContactCandidates()
	s.update(func(st *SyncStatus) {
		st.Phase = SyncPhaseContacts
		st.Total = len(candidates)
		st.Progress = 0
	})

	for _, c := range candidates {
		if ctx.Err() != nil {
			return
		}
		stored, err := s.upsert(ctx, func(ctx context.Context) error {
			return s.sink.UpsertContact(ctx, s.instance, c.JID, c.Name, c.PushName)
		})
		s.update(func(st *SyncStatus) {
			st.Progress++
			if stored {
				st.ContactsSynced++
			}
		})
		if err != nil {
			logger.WithField("jid", log.MaskJID(c.JID)).WithError(err).Warn("contact sync failed")
		}
	}
}

// upsert writes one row through the sink and reports whether it was stored.
func (s *Syncer) upsert(ctx context.Context, fn func(context.Context) error) (bool, error) {
	if s.sink == nil {
		return false, nil
	}
	if err := fn(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Syncer) fail(err error, logger *logrus.Entry) {
	logger.WithError(err).Error("group listing failed, continuing with contacts")
	s.update(func(st *SyncStatus) { st.Error = err.Error() })
}

func (s *Syncer) update(fn func(*SyncStatus)) {
	s.mu.Lock()
	fn(&s.status)
	s.mu.Unlock()
}
