package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"go.uber.org/zap"
)

const (
	idA   = "aaaaaaaaaa1"
	idB   = "bbbbbbbbbb2"
	idC   = "cccccccccc3"
	idD   = "dddddddddd4"
	idNew = "fresh000001"
)

func TestEngine_PlayNow_IdempotentReAdd(t *testing.T) {
	player := newFakePlayer(track(idA))
	engine := newTestEngine(player)

	state, err := engine.PlayNow(context.Background(), track(idA))
	if err != nil {
		t.Fatalf("PlayNow() unexpected error: %v", err)
	}

	if len(player.enqueueCalls) != 0 {
		t.Errorf("PlayNow() enqueued %v, want no enqueue for a queued track", player.enqueueCalls)
	}
	if got := player.ids(); !reflect.DeepEqual(got, []string{idA}) {
		t.Errorf("queue = %v, want [%s]", got, idA)
	}
	if !reflect.DeepEqual(player.setIndexCalls, []int{0}) {
		t.Errorf("SetCurrentIndex calls = %v, want [0]", player.setIndexCalls)
	}
	if player.playCalls != 1 {
		t.Errorf("Play calls = %d, want 1", player.playCalls)
	}
	if state.CurrentTrackID() != idA {
		t.Errorf("PlayNow() current = %q, want %q", state.CurrentTrackID(), idA)
	}
}

func TestEngine_PlayNow_EvictsFullQueue(t *testing.T) {
	tracks := make([]Track, DefaultQueueCapacity)
	for i := range tracks {
		tracks[i] = track(fmt.Sprintf("track%06d", i))
	}
	player := newFakePlayer(tracks...)
	player.current = 17
	engine := newTestEngine(player)

	if _, err := engine.PlayNow(context.Background(), track(idNew)); err != nil {
		t.Fatalf("PlayNow() unexpected error: %v", err)
	}

	if got := player.ids(); !reflect.DeepEqual(got, []string{idNew}) {
		t.Errorf("queue = %v, want only %s", got, idNew)
	}
	if len(player.deleteCalls) == 0 || player.deleteCalls[0] != DefaultQueueCapacity-1 {
		t.Errorf("first delete = %v, want eviction to start at the last position", player.deleteCalls)
	}
	for _, position := range player.deleteCalls[:40] {
		if position == 17 {
			t.Errorf("eviction deleted the current entry")
		}
	}
	if !reflect.DeepEqual(player.setIndexCalls, []int{0}) {
		t.Errorf("SetCurrentIndex calls = %v, want [0]", player.setIndexCalls)
	}
	if engine.Mirror().Len() != 1 {
		t.Errorf("mirror length = %d, want 1", engine.Mirror().Len())
	}
}

func TestEngine_PlayNow_TrimsOtherEntries(t *testing.T) {
	player := newFakePlayer(track(idA), track(idB), track(idC))
	engine := newTestEngine(player)

	if _, err := engine.PlayNow(context.Background(), track(idNew)); err != nil {
		t.Fatalf("PlayNow() unexpected error: %v", err)
	}

	if got := player.ids(); !reflect.DeepEqual(got, []string{idNew}) {
		t.Errorf("queue = %v, want only %s", got, idNew)
	}
	for i := 1; i < len(player.deleteCalls); i++ {
		if player.deleteCalls[i] > player.deleteCalls[i-1] {
			t.Fatalf("deletes = %v, want descending order", player.deleteCalls)
		}
	}
}

func TestEngine_PlayNow_KeepCurrentOnPlay(t *testing.T) {
	player := newFakePlayer(track(idA), track(idB))
	config := fastEngineConfig()
	config.KeepCurrentOnPlay = true
	engine := NewEngine(player, config, zap.NewNop())

	if _, err := engine.PlayNow(context.Background(), track(idNew)); err != nil {
		t.Fatalf("PlayNow() unexpected error: %v", err)
	}

	if got := player.ids(); !reflect.DeepEqual(got, []string{idA, idNew}) {
		t.Errorf("queue = %v, want [%s %s]", got, idA, idNew)
	}
	if !reflect.DeepEqual(player.setIndexCalls, []int{1}) {
		t.Errorf("SetCurrentIndex calls = %v, want [1]", player.setIndexCalls)
	}
}

func TestEngine_PlayNow_NotFoundNeverSelects(t *testing.T) {
	player := newFakePlayer(track(idA))
	player.dropEnqueue = true
	engine := newTestEngine(player)

	_, err := engine.PlayNow(context.Background(), track(idNew))
	if !errors.Is(err, ErrTrackNotFound) {
		t.Fatalf("PlayNow() error = %v, want ErrTrackNotFound", err)
	}

	var opErr *OperationError
	if !errors.As(err, &opErr) || opErr.Op != opPlayNow {
		t.Errorf("PlayNow() error = %#v, want *OperationError for %s", err, opPlayNow)
	}
	if len(player.setIndexCalls) != 0 {
		t.Errorf("SetCurrentIndex called %v, want no calls", player.setIndexCalls)
	}
	if len(player.deleteCalls) != 0 {
		t.Errorf("deletes = %v, want none", player.deleteCalls)
	}
	// one pre-read, every poll attempt, one mirror refresh
	if want := 1 + fastEngineConfig().PollAttempts + 1; player.getQueueCalls != want {
		t.Errorf("GetQueue calls = %d, want %d", player.getQueueCalls, want)
	}
}

func TestEngine_PlayNow_EnqueueRejected(t *testing.T) {
	player := newFakePlayer()
	player.enqueueErr = errFakeRemote
	engine := newTestEngine(player)

	_, err := engine.PlayNow(context.Background(), track(idNew))
	if !errors.Is(err, ErrEnqueueFailed) {
		t.Errorf("PlayNow() error = %v, want ErrEnqueueFailed", err)
	}
	if !errors.Is(err, errFakeRemote) {
		t.Errorf("PlayNow() error = %v, want wrapped transport error", err)
	}
}

func TestEngine_PlayNow_SetIndexFails(t *testing.T) {
	player := newFakePlayer()
	player.setIndexErr = errFakeRemote
	engine := newTestEngine(player)

	_, err := engine.PlayNow(context.Background(), track(idNew))
	if !errors.Is(err, ErrSetIndexFailed) {
		t.Errorf("PlayNow() error = %v, want ErrSetIndexFailed", err)
	}
	if player.playCalls != 0 {
		t.Errorf("Play calls = %d, want 0", player.playCalls)
	}
}

func TestEngine_PlayNow_MissingID(t *testing.T) {
	engine := newTestEngine(newFakePlayer())

	if _, err := engine.PlayNow(context.Background(), Track{Title: "x"}); !errors.Is(err, ErrInvalidTrack) {
		t.Errorf("PlayNow() error = %v, want ErrInvalidTrack", err)
	}
}

func TestEngine_EnqueueTrack_SucceedsAfterLag(t *testing.T) {
	player := newFakePlayer()
	player.hideReads = 1
	engine := newTestEngine(player)

	if err := engine.EnqueueTrack(context.Background(), track(idC), InsertAtEnd); err != nil {
		t.Fatalf("EnqueueTrack() unexpected error: %v", err)
	}

	if got := player.ids(); !reflect.DeepEqual(got, []string{idC}) {
		t.Errorf("queue = %v, want [%s]", got, idC)
	}
	if len(player.enqueueCalls) > 2 {
		t.Errorf("enqueue calls = %d, want at most 2", len(player.enqueueCalls))
	}
	if got := engine.Queue(); len(got) != 1 || got[0].Track.ID != idC {
		t.Errorf("mirror = %v, want [%s]", got, idC)
	}
}

func TestEngine_EnqueueTrack_VisibleImmediately(t *testing.T) {
	player := newFakePlayer(track(idA))
	engine := newTestEngine(player)

	if err := engine.EnqueueTrack(context.Background(), track(idB), InsertAfterCurrent); err != nil {
		t.Fatalf("EnqueueTrack() unexpected error: %v", err)
	}
	if len(player.enqueueCalls) != 1 {
		t.Errorf("enqueue calls = %d, want 1", len(player.enqueueCalls))
	}
	if got := player.ids(); !reflect.DeepEqual(got, []string{idA, idB}) {
		t.Errorf("queue = %v, want [%s %s]", got, idA, idB)
	}
}

func TestEngine_EnqueueTrack_NeverVisible(t *testing.T) {
	player := newFakePlayer()
	player.dropEnqueue = true
	engine := newTestEngine(player)

	err := engine.EnqueueTrack(context.Background(), track(idC), InsertAtEnd)
	if !errors.Is(err, ErrTrackNotVisible) {
		t.Fatalf("EnqueueTrack() error = %v, want ErrTrackNotVisible", err)
	}
	if len(player.enqueueCalls) != 2 {
		t.Errorf("enqueue calls = %d, want 2", len(player.enqueueCalls))
	}
}

func TestEngine_EnqueueTrack_Rejected(t *testing.T) {
	player := newFakePlayer()
	player.enqueueErr = errFakeRemote
	engine := newTestEngine(player)

	err := engine.EnqueueTrack(context.Background(), track(idC), InsertAtEnd)
	if !errors.Is(err, ErrEnqueueFailed) {
		t.Errorf("EnqueueTrack() error = %v, want ErrEnqueueFailed", err)
	}
	if len(player.enqueueCalls) != 1 {
		t.Errorf("enqueue calls = %d, want no retry after a rejected request", len(player.enqueueCalls))
	}
}

func TestEngine_RemoveEntry_Scenario(t *testing.T) {
	player := newFakePlayer(track(idA), track(idB))
	engine := newTestEngine(player)
	ctx := context.Background()

	removed, err := engine.RemoveEntry(ctx, EntryKey(idB, 1), idA)
	if err != nil {
		t.Fatalf("RemoveEntry(B) unexpected error: %v", err)
	}
	if removed.Track.ID != idB {
		t.Errorf("removed = %s, want %s", removed.Track.ID, idB)
	}
	if got := player.ids(); !reflect.DeepEqual(got, []string{idA}) {
		t.Fatalf("queue = %v, want [%s]", got, idA)
	}

	_, err = engine.RemoveEntry(ctx, EntryKey(idA, 0), idA)
	if !errors.Is(err, ErrEntryIsCurrent) {
		t.Errorf("RemoveEntry(A) error = %v, want ErrEntryIsCurrent", err)
	}
	if got := player.ids(); !reflect.DeepEqual(got, []string{idA}) {
		t.Errorf("queue = %v, want [%s] after refused removal", got, idA)
	}
}

func TestEngine_RemoveEntry_CurrentBySelectedFlag(t *testing.T) {
	player := newFakePlayer(track(idA), track(idB))
	engine := newTestEngine(player)

	_, err := engine.RemoveEntry(context.Background(), EntryKey(idA, 0), "")
	if !errors.Is(err, ErrEntryIsCurrent) {
		t.Errorf("RemoveEntry() error = %v, want ErrEntryIsCurrent", err)
	}
	if len(player.deleteCalls) != 0 {
		t.Errorf("deletes = %v, want none", player.deleteCalls)
	}
}

func TestEngine_RemoveEntry_BadKeys(t *testing.T) {
	player := newFakePlayer(track(idA))
	engine := newTestEngine(player)
	ctx := context.Background()

	if _, err := engine.RemoveEntry(ctx, "no-index-", ""); !errors.Is(err, ErrInvalidEntryKey) {
		t.Errorf("RemoveEntry(malformed) error = %v, want ErrInvalidEntryKey", err)
	}
	if _, err := engine.RemoveEntry(ctx, EntryKey(idB, 5), ""); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("RemoveEntry(unknown track) error = %v, want ErrEntryNotFound", err)
	}
	if len(player.deleteCalls) != 0 {
		t.Errorf("deletes = %v, want none", player.deleteCalls)
	}
}

func TestEngine_RemoveEntry_QueueShifted(t *testing.T) {
	player := newFakePlayer(track(idA), track(idB), track(idC))
	engine := newTestEngine(player)
	ctx := context.Background()

	key := EntryKey(idB, 1)

	// another client inserts D ahead of B after the key was rendered
	player.mutex.Lock()
	player.queue = []Track{track(idA), track(idD), track(idB), track(idC)}
	player.mutex.Unlock()

	removed, err := engine.RemoveEntry(ctx, key, idA)
	if err != nil {
		t.Fatalf("RemoveEntry() unexpected error: %v", err)
	}
	if removed.Track.ID != idB || removed.Position != 2 {
		t.Errorf("removed = %s at %d, want %s at 2", removed.Track.ID, removed.Position, idB)
	}
	if got := player.ids(); !reflect.DeepEqual(got, []string{idA, idD, idC}) {
		t.Errorf("queue = %v, want [%s %s %s]", got, idA, idD, idC)
	}
}

func TestEngine_RemoveEntry_TrackGone(t *testing.T) {
	player := newFakePlayer(track(idA), track(idB), track(idC))
	engine := newTestEngine(player)

	key := EntryKey(idB, 1)

	player.mutex.Lock()
	player.queue = []Track{track(idA), track(idD), track(idC)}
	player.mutex.Unlock()

	if _, err := engine.RemoveEntry(context.Background(), key, idA); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("RemoveEntry() error = %v, want ErrEntryNotFound", err)
	}
	if got := player.ids(); !reflect.DeepEqual(got, []string{idA, idD, idC}) {
		t.Errorf("queue = %v, want it untouched", got)
	}
}

func TestParseEntryKey(t *testing.T) {
	tests := []struct {
		key          string
		wantID       string
		wantPosition int
		wantErr      bool
	}{
		{key: "dQw4w9WgXcQ-0", wantID: "dQw4w9WgXcQ", wantPosition: 0},
		{key: "a-b-c-12", wantID: "a-b-c", wantPosition: 12},
		{key: "-3", wantID: "", wantPosition: 3},
		{key: "abc", wantErr: true},
		{key: "abc-", wantErr: true},
		{key: "abc-x1", wantErr: true},
		{key: "abc--1", wantID: "abc-", wantPosition: 1},
	}

	for _, tt := range tests {
		id, position, err := ParseEntryKey(tt.key)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseEntryKey(%q) expected error", tt.key)
			}
			continue
		}
		if err != nil || id != tt.wantID || position != tt.wantPosition {
			t.Errorf("ParseEntryKey(%q) = (%q, %d, %v), want (%q, %d)", tt.key, id, position, err, tt.wantID, tt.wantPosition)
		}
	}
}

func TestEngine_MoveEntry(t *testing.T) {
	player := newFakePlayer(track(idA), track(idB), track(idC))
	engine := newTestEngine(player)
	ctx := context.Background()
	if _, err := engine.RefreshQueue(ctx); err != nil {
		t.Fatalf("RefreshQueue() unexpected error: %v", err)
	}
	queue := engine.Queue()

	if err := engine.MoveEntry(ctx, queue[0], Up); err != nil {
		t.Errorf("MoveEntry(first, up) error = %v", err)
	}
	if err := engine.MoveEntry(ctx, queue[2], Down); err != nil {
		t.Errorf("MoveEntry(last, down) error = %v", err)
	}
	if len(player.moveCalls) != 0 {
		t.Fatalf("boundary moves issued %v, want none", player.moveCalls)
	}

	if err := engine.MoveEntry(ctx, queue[1], Down); err != nil {
		t.Fatalf("MoveEntry(middle, down) unexpected error: %v", err)
	}
	if !reflect.DeepEqual(player.moveCalls, [][2]int{{1, 2}}) {
		t.Errorf("move calls = %v, want [[1 2]]", player.moveCalls)
	}
	if got := player.ids(); !reflect.DeepEqual(got, []string{idA, idC, idB}) {
		t.Errorf("queue = %v, want [%s %s %s]", got, idA, idC, idB)
	}
}

func TestEngine_ClearExceptCurrent(t *testing.T) {
	player := newFakePlayer(track(idA), track(idB), track(idC), track(idD))
	player.current = 1
	engine := newTestEngine(player)

	deleted, err := engine.ClearExceptCurrent(context.Background(), idB)
	if err != nil {
		t.Fatalf("ClearExceptCurrent() unexpected error: %v", err)
	}
	if deleted != 3 {
		t.Errorf("ClearExceptCurrent() = %d, want 3", deleted)
	}
	if got := player.ids(); !reflect.DeepEqual(got, []string{idB}) {
		t.Errorf("queue = %v, want [%s]", got, idB)
	}
	if !reflect.DeepEqual(player.deleteCalls, []int{3, 2, 0}) {
		t.Errorf("deletes = %v, want [3 2 0]", player.deleteCalls)
	}
}

func TestEngine_ClearExceptCurrent_ContinuesPastFailures(t *testing.T) {
	player := newFakePlayer(track(idA), track(idB), track(idC), track(idD))
	player.deleteErr[2] = errFakeRemote
	engine := newTestEngine(player)

	deleted, err := engine.ClearExceptCurrent(context.Background(), idA)
	if err != nil {
		t.Fatalf("ClearExceptCurrent() unexpected error: %v", err)
	}
	if deleted != 2 {
		t.Errorf("ClearExceptCurrent() = %d, want 2", deleted)
	}
	if got := player.ids(); !reflect.DeepEqual(got, []string{idA, idC}) {
		t.Errorf("queue = %v, want [%s %s]", got, idA, idC)
	}
}

func TestEngine_JumpTo(t *testing.T) {
	player := newFakePlayer(track(idA), track(idB), track(idC))
	engine := newTestEngine(player)

	entry := QueueEntry{Track: track(idC), Position: 2}
	if err := engine.JumpTo(context.Background(), entry); err != nil {
		t.Fatalf("JumpTo() unexpected error: %v", err)
	}
	if !reflect.DeepEqual(player.setIndexCalls, []int{2}) {
		t.Errorf("SetCurrentIndex calls = %v, want [2]", player.setIndexCalls)
	}
	if player.playCalls != 1 {
		t.Errorf("Play calls = %d, want 1", player.playCalls)
	}
}

func TestEngine_RefreshQueueKeepsMirrorOnError(t *testing.T) {
	player := newFakePlayer(track(idA))
	engine := newTestEngine(player)
	ctx := context.Background()

	if _, err := engine.RefreshQueue(ctx); err != nil {
		t.Fatalf("RefreshQueue() unexpected error: %v", err)
	}
	fetchedAt := engine.Mirror().FetchedAt()

	player.queueErr = errFakeRemote
	entries, err := engine.RefreshQueue(ctx)
	if err == nil {
		t.Fatal("RefreshQueue() expected error")
	}
	if len(entries) != 1 || engine.Mirror().Len() != 1 {
		t.Errorf("mirror was replaced after a failed refresh")
	}
	if !engine.Mirror().FetchedAt().Equal(fetchedAt) {
		t.Errorf("FetchedAt changed after a failed refresh")
	}
}
