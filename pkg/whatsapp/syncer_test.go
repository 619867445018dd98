package whatsapp

import (
	"context"
	"errors"
	"testing"
)

func TestSyncerRunsBothPhases(t *testing.T) {
	mirror := NewMirror()
	mirror.UpsertContacts([]Contact{
		{JID: "1@s.whatsapp.net", Name: "Ana"},
		{JID: "2@s.whatsapp.net", Name: "Bad"},
	})
	mirror.UpsertChats([]Chat{{JID: "3@s.whatsapp.net"}, {JID: "status@broadcast"}})

	sink := &fakeSink{failJID: "2@s.whatsapp.net"}
	var done []SyncStatus
	s := NewSyncer("acme", mirror, sink, func(st SyncStatus) { done = append(done, st) })

	st, err := s.Run(context.Background(), fakeLister{groups: []GroupInfo{
		{JID: "10@g.us", Name: "Team", Participants: 4},
		{JID: "11@g.us", Name: "Family", Participants: 7},
	}})
	if err != nil {
		t.Fatal(err)
	}

	if !st.Completed || st.Syncing || st.Phase != SyncPhaseDone || st.Error != "" {
		t.Fatalf("final status %+v", st)
	}
	if st.GroupsSynced != 2 || st.ContactsSynced != 2 {
		t.Fatalf("synced groups=%d contacts=%d", st.GroupsSynced, st.ContactsSynced)
	}
	if st.Total != 3 || st.Progress != 3 {
		t.Fatalf("contact phase progress %d/%d", st.Progress, st.Total)
	}
	if st.StartedAt == nil || st.FinishedAt == nil {
		t.Fatal("timestamps missing")
	}
	if len(done) != 1 || done[0].GroupsSynced != 2 {
		t.Fatalf("completion callback %+v", done)
	}
	if g := mirror.Groups(); len(g) != 2 || g[0].Participants == 0 {
		t.Fatalf("groups not mirrored: %+v", g)
	}
}

func TestSyncerContinuesWhenGroupListingFails(t *testing.T) {
	mirror := NewMirror()
	mirror.UpsertContacts([]Contact{{JID: "1@s.whatsapp.net"}})
	sink := &fakeSink{}
	s := NewSyncer("acme", mirror, sink, nil)

	st, err := s.Run(context.Background(), fakeLister{err: errors.New("iq timed out")})
	if err != nil {
		t.Fatal(err)
	}
	if st.Error != "iq timed out" || st.GroupsSynced != 0 || st.ContactsSynced != 1 || !st.Completed {
		t.Fatalf("status %+v", st)
	}

	st, err = s.Run(context.Background(), nil)
	if err != nil || st.Error == "" || st.ContactsSynced != 1 {
		t.Fatalf("nil lister: %+v %v", st, err)
	}
}

func TestSyncerRejectsConcurrentRuns(t *testing.T) {
	mirror := NewMirror()
	sink := &fakeSink{block: make(chan struct{})}
	finished := make(chan SyncStatus, 1)
	s := NewSyncer("acme", mirror, sink, func(st SyncStatus) { finished <- st })

	lister := fakeLister{groups: []GroupInfo{{JID: "10@g.us"}}}
	if err := s.Start(context.Background(), lister); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background(), lister); !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("second start: %v", err)
	}
	if !s.Status().Syncing {
		t.Fatal("status does not report the running sync")
	}

	s.Cancel()
	st := <-finished
	if st.Completed || st.Error == "" {
		t.Fatalf("cancelled sync reported %+v", st)
	}

	close(sink.block)
	if _, err := s.Run(context.Background(), lister); err != nil {
		t.Fatalf("sync after cancel: %v", err)
	}
}

func TestSyncerWithoutSink(t *testing.T) {
	mirror := NewMirror()
	mirror.UpsertContacts([]Contact{{JID: "1@s.whatsapp.net"}})
	st, err := NewSyncer("acme", mirror, nil, nil).Run(context.Background(), fakeLister{groups: []GroupInfo{{JID: "10@g.us", Name: "Team"}}})
	if err != nil || !st.Completed {
		t.Fatalf("status %+v %v", st, err)
	}
	// nothing was stored, so nothing counts as synced
	if st.GroupsSynced != 0 || st.ContactsSynced != 0 || st.Progress != st.Total {
		t.Fatalf("counters without a sink %+v", st)
	}
	if g := mirror.Groups(); len(g) != 1 {
		t.Fatalf("groups not mirrored: %+v", g)
	}
}
