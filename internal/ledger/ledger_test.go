package ledger

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/inkraft/sentinel/internal/errs"
	"github.com/inkraft/sentinel/internal/models"
)

// memStore is an in-memory Store for tests
type memStore struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	accounts map[int64]*models.Account
	content  map[int64]*models.Content
	votes    map[[2]int64]*models.Vote
	comments []*models.Comment

	// lockedReads counts GetContentForUpdate calls, so tests can
	// assert aggregate writers read content through the locking path.
	lockedReads int
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[int64]*models.Account),
		content:  make(map[int64]*models.Content),
		votes:    make(map[[2]int64]*models.Vote),
	}
}

func (s *memStore) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, nil
}

func (s *memStore) GetContentForUpdate(ctx context.Context, id int64) (*models.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockedReads++
	if c, ok := s.content[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, nil
}

func (s *memStore) GetVote(ctx context.Context, accountID, contentID int64) (*models.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.votes[[2]int64{accountID, contentID}]; ok {
		copied := *v
		return &copied, nil
	}
	return nil, nil
}

func (s *memStore) CreateVote(ctx context.Context, vote *models.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *vote
	s.votes[[2]int64{vote.AccountID, vote.ContentID}] = &copied
	return nil
}

func (s *memStore) UpdateVote(ctx context.Context, vote *models.Vote) error {
	return s.CreateVote(ctx, vote)
}

func (s *memStore) DeleteVote(ctx context.Context, accountID, contentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.votes, [2]int64{accountID, contentID})
	return nil
}

func (s *memStore) ListVotesSince(ctx context.Context, contentID int64, since time.Time) ([]*models.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Vote
	for _, v := range s.votes {
		if v.ContentID == contentID && !v.CreatedAt.Before(since) {
			copied := *v
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memStore) CreateComment(ctx context.Context, comment *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *comment
	s.comments = append(s.comments, &copied)
	return nil
}

func (s *memStore) UpdateContent(ctx context.Context, content *models.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *content
	s.content[content.ID] = &copied
	return nil
}

func (s *memStore) InTx(ctx context.Context, fn func(Store) error) error {
	// One transaction at a time, the way the row lock taken by
	// GetContentForUpdate serializes writers on the real store.
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(s)
}

var ledgerNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestLedger(store Store) *Ledger {
	l := New(store)
	l.now = func() time.Time { return ledgerNow }
	return l
}

// seedAccount adds an account whose trust multiplier works out to the
// given value (via followers only: followers = (m-1)/0.5*50, capped).
func seedAccount(s *memStore, id int64, trustScore float64, banned bool) {
	s.accounts[id] = &models.Account{
		ID:          id,
		CreatedAt:   ledgerNow.AddDate(0, 0, -1),
		TrustScore:  trustScore,
		TrustFrozen: true, // fix the multiplier at TrustScore for predictable weights
		Banned:      banned,
	}
}

func seedContent(s *memStore, id int64) {
	s.content[id] = &models.Content{
		ID:        id,
		CreatedAt: ledgerNow.Add(-24 * time.Hour),
	}
}

func TestCastCreateVote(t *testing.T) {
	store := newMemStore()
	seedAccount(store, 1, 1.5, false)
	seedContent(store, 10)
	l := newTestLedger(store)

	result, err := l.Cast(context.Background(), 1, 10, models.VoteUp)
	if err != nil {
		t.Fatalf("Cast failed: %v", err)
	}

	if result.UserVote != models.VoteUp {
		t.Errorf("UserVote = %s, want up", result.UserVote)
	}
	if result.Upvotes != 1.5 {
		t.Errorf("Upvotes = %v, want 1.5 (trust-weighted)", result.Upvotes)
	}
	if result.EngagementScore == 0 {
		t.Error("EngagementScore should be recomputed after the vote")
	}
	if store.lockedReads != 1 {
		t.Errorf("lockedReads = %d, want the content read under the row lock", store.lockedReads)
	}
}

func TestCastToggleOffIdempotent(t *testing.T) {
	store := newMemStore()
	seedAccount(store, 1, 1.8, false)
	seedContent(store, 10)
	store.content[10].Upvotes = 5.25
	store.content[10].Downvotes = 1.5
	l := newTestLedger(store)

	ctx := context.Background()
	if _, err := l.Cast(ctx, 1, 10, models.VoteUp); err != nil {
		t.Fatalf("first cast failed: %v", err)
	}
	result, err := l.Cast(ctx, 1, 10, models.VoteUp)
	if err != nil {
		t.Fatalf("second cast failed: %v", err)
	}

	if result.UserVote != UserVoteNone {
		t.Errorf("UserVote after toggle = %s, want none", result.UserVote)
	}
	if math.Abs(result.Upvotes-5.25) > 1e-9 {
		t.Errorf("Upvotes after toggle = %v, want exact pre-cast 5.25", result.Upvotes)
	}
	if result.Downvotes != 1.5 {
		t.Errorf("Downvotes should be untouched, got %v", result.Downvotes)
	}
	if _, ok := store.votes[[2]int64{1, 10}]; ok {
		t.Error("vote record should be deleted after toggle off")
	}
}

func TestCastSwitchDirection(t *testing.T) {
	store := newMemStore()
	seedAccount(store, 1, 2.0, false)
	seedContent(store, 10)
	l := newTestLedger(store)

	ctx := context.Background()
	if _, err := l.Cast(ctx, 1, 10, models.VoteUp); err != nil {
		t.Fatalf("up cast failed: %v", err)
	}
	result, err := l.Cast(ctx, 1, 10, models.VoteDown)
	if err != nil {
		t.Fatalf("switch cast failed: %v", err)
	}

	if result.UserVote != models.VoteDown {
		t.Errorf("UserVote = %s, want down", result.UserVote)
	}
	// Old side decremented to zero, no double count
	if result.Upvotes != 0 {
		t.Errorf("Upvotes after switch = %v, want 0", result.Upvotes)
	}
	if result.Downvotes != 2.0 {
		t.Errorf("Downvotes after switch = %v, want 2.0", result.Downvotes)
	}

	vote := store.votes[[2]int64{1, 10}]
	if vote == nil || vote.Direction != models.VoteDown {
		t.Fatal("vote record should hold the new direction")
	}
}

func TestCastSwitchNeverDoubleCounts(t *testing.T) {
	store := newMemStore()
	seedAccount(store, 1, 1.3, false)
	seedContent(store, 10)
	l := newTestLedger(store)

	ctx := context.Background()
	l.Cast(ctx, 1, 10, models.VoteUp)

	before := store.content[10].Upvotes + store.content[10].Downvotes
	result, _ := l.Cast(ctx, 1, 10, models.VoteDown)
	after := result.Upvotes + result.Downvotes

	// Total weight across both sides stays exactly one vote's weight
	if math.Abs(after-before) > 1e-9 {
		t.Errorf("total weight drifted on switch: before %v, after %v", before, after)
	}
}

func TestCastErrors(t *testing.T) {
	store := newMemStore()
	seedAccount(store, 1, 1.0, false)
	seedAccount(store, 2, 1.0, true)
	seedContent(store, 10)
	l := newTestLedger(store)

	ctx := context.Background()

	tests := []struct {
		name      string
		accountID int64
		contentID int64
		direction string
		wantErr   error
	}{
		{"bad direction", 1, 10, "sideways", errs.ErrInvalidInput},
		{"missing account", 99, 10, models.VoteUp, errs.ErrNotFound},
		{"missing content", 1, 99, models.VoteUp, errs.ErrNotFound},
		{"banned account", 2, 10, models.VoteUp, errs.ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Cast(ctx, tt.accountID, tt.contentID, tt.direction)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Cast error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCastConcurrentSamePair(t *testing.T) {
	store := newMemStore()
	seedAccount(store, 1, 1.0, false)
	seedContent(store, 10)
	l := newTestLedger(store)

	ctx := context.Background()
	const casts = 100

	var wg sync.WaitGroup
	for i := 0; i < casts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Cast(ctx, 1, 10, models.VoteUp)
		}()
	}
	wg.Wait()

	// An even number of toggles lands on no vote and zero totals; an
	// odd number on one vote of weight 1.0. Either way totals must
	// match the vote records exactly: serialization prevented drift.
	_, hasVote := store.votes[[2]int64{1, 10}]
	up := store.content[10].Upvotes
	if hasVote && math.Abs(up-1.0) > 1e-9 {
		t.Errorf("vote exists but Upvotes = %v, want 1.0", up)
	}
	if !hasVote && math.Abs(up) > 1e-9 {
		t.Errorf("no vote but Upvotes = %v, want 0", up)
	}
}

func TestNullify(t *testing.T) {
	store := newMemStore()
	seedContent(store, 10)
	l := newTestLedger(store)

	// Three low trust voters, two healthy ones
	for i := int64(1); i <= 3; i++ {
		seedAccount(store, i, 0.3, false)
	}
	for i := int64(4); i <= 5; i++ {
		seedAccount(store, i, 1.2, false)
	}

	content := store.content[10]
	for i := int64(1); i <= 5; i++ {
		weight := store.accounts[i].TrustScore
		store.votes[[2]int64{i, 10}] = &models.Vote{
			AccountID: i, ContentID: 10,
			Direction: models.VoteUp, Weight: weight,
			CreatedAt: ledgerNow.Add(-10 * time.Minute),
		}
		content.Upvotes += weight
	}

	result, err := l.Nullify(context.Background(), 10, time.Hour, false)
	if err != nil {
		t.Fatalf("Nullify failed: %v", err)
	}

	if result.NullifiedCount != 3 {
		t.Errorf("NullifiedCount = %d, want 3", result.NullifiedCount)
	}
	if math.Abs(result.RemovedUpWeight-0.9) > 1e-9 {
		t.Errorf("RemovedUpWeight = %v, want 0.9", result.RemovedUpWeight)
	}

	// Only the low trust weights come off; healthy votes survive
	wantUpvotes := 1.2 + 1.2
	if math.Abs(store.content[10].Upvotes-wantUpvotes) > 1e-9 {
		t.Errorf("Upvotes = %v, want %v", store.content[10].Upvotes, wantUpvotes)
	}
	for i := int64(4); i <= 5; i++ {
		if _, ok := store.votes[[2]int64{i, 10}]; !ok {
			t.Errorf("healthy vote by account %d should survive", i)
		}
	}
}

func TestNullifyDownvoteHandling(t *testing.T) {
	setup := func() *memStore {
		store := newMemStore()
		seedContent(store, 10)
		seedAccount(store, 1, 0.3, false)
		store.content[10].Upvotes = 5.0
		store.content[10].Downvotes = 2.0
		store.votes[[2]int64{1, 10}] = &models.Vote{
			AccountID: 1, ContentID: 10,
			Direction: models.VoteDown, Weight: 0.5,
			CreatedAt: ledgerNow.Add(-10 * time.Minute),
		}
		return store
	}

	t.Run("historical behavior charges the upvote side", func(t *testing.T) {
		store := setup()
		l := newTestLedger(store)
		if _, err := l.Nullify(context.Background(), 10, time.Hour, false); err != nil {
			t.Fatalf("Nullify failed: %v", err)
		}
		if got := store.content[10].Upvotes; math.Abs(got-4.5) > 1e-9 {
			t.Errorf("Upvotes = %v, want 4.5", got)
		}
		if got := store.content[10].Downvotes; got != 2.0 {
			t.Errorf("Downvotes = %v, want untouched 2.0", got)
		}
	})

	t.Run("split mode charges each side correctly", func(t *testing.T) {
		store := setup()
		l := newTestLedger(store)
		if _, err := l.Nullify(context.Background(), 10, time.Hour, true); err != nil {
			t.Fatalf("Nullify failed: %v", err)
		}
		if got := store.content[10].Upvotes; got != 5.0 {
			t.Errorf("Upvotes = %v, want untouched 5.0", got)
		}
		if got := store.content[10].Downvotes; math.Abs(got-1.5) > 1e-9 {
			t.Errorf("Downvotes = %v, want 1.5", got)
		}
	})
}

func TestNullifyOldVotesOutsideWindow(t *testing.T) {
	store := newMemStore()
	seedContent(store, 10)
	seedAccount(store, 1, 0.3, false)
	store.content[10].Upvotes = 0.5
	store.votes[[2]int64{1, 10}] = &models.Vote{
		AccountID: 1, ContentID: 10,
		Direction: models.VoteUp, Weight: 0.5,
		CreatedAt: ledgerNow.Add(-2 * time.Hour),
	}
	l := newTestLedger(store)

	result, err := l.Nullify(context.Background(), 10, time.Hour, false)
	if err != nil {
		t.Fatalf("Nullify failed: %v", err)
	}
	if result.NullifiedCount != 0 {
		t.Errorf("votes outside the window should not be nullified, got %d", result.NullifiedCount)
	}
}

func TestRecordComment(t *testing.T) {
	store := newMemStore()
	seedAccount(store, 1, 1.0, false)
	seedContent(store, 10)
	store.content[10].Upvotes = 1.5
	l := newTestLedger(store)

	result, err := l.RecordComment(context.Background(), 1, 10, models.ModerationPending)
	if err != nil {
		t.Fatalf("RecordComment failed: %v", err)
	}

	if result.CommentCount != 1 {
		t.Errorf("CommentCount = %d, want 1", result.CommentCount)
	}
	if result.EngagementScore == 0 {
		t.Error("EngagementScore should be recomputed after the comment")
	}

	if len(store.comments) != 1 {
		t.Fatalf("stored %d comments, want 1", len(store.comments))
	}
	comment := store.comments[0]
	if comment.AccountID != 1 || comment.ContentID != 10 {
		t.Errorf("comment stored for (%d, %d), want (1, 10)", comment.AccountID, comment.ContentID)
	}
	if comment.ModerationStatus != models.ModerationPending {
		t.Errorf("ModerationStatus = %s, want pending", comment.ModerationStatus)
	}

	// The aggregate write-back carries the totals read under the row
	// lock, so weight already on the content survives.
	if up := store.content[10].Upvotes; math.Abs(up-1.5) > 1e-9 {
		t.Errorf("Upvotes = %v, want 1.5 untouched", up)
	}
	if store.lockedReads != 1 {
		t.Errorf("lockedReads = %d, want 1", store.lockedReads)
	}
}

func TestRecordCommentContentMissing(t *testing.T) {
	store := newMemStore()
	seedAccount(store, 1, 1.0, false)
	seedContent(store, 10)
	store.content[10].IsDeleted = true
	l := newTestLedger(store)

	for _, contentID := range []int64{10, 99} {
		_, err := l.RecordComment(context.Background(), 1, contentID, models.ModerationApproved)
		if !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("RecordComment(content %d) error = %v, want not found", contentID, err)
		}
	}
	if len(store.comments) != 0 {
		t.Errorf("stored %d comments, want 0", len(store.comments))
	}
}

func TestRecordCommentConcurrentWithVotes(t *testing.T) {
	store := newMemStore()
	seedContent(store, 10)
	const voters = 10
	for i := int64(1); i <= voters; i++ {
		seedAccount(store, i, 1.0, false)
	}
	seedAccount(store, 100, 1.0, false)
	l := newTestLedger(store)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := int64(1); i <= voters; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := l.Cast(ctx, id, 10, models.VoteUp); err != nil {
				t.Errorf("Cast by %d failed: %v", id, err)
			}
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.RecordComment(ctx, 100, 10, models.ModerationApproved); err != nil {
				t.Errorf("RecordComment failed: %v", err)
			}
		}()
	}
	wg.Wait()

	// Every writer read the totals under the row lock, so no vote
	// weight and no comment is lost to a stale write-back.
	content := store.content[10]
	if math.Abs(content.Upvotes-float64(voters)) > 1e-9 {
		t.Errorf("Upvotes = %v, want %d", content.Upvotes, voters)
	}
	if content.CommentCount != voters {
		t.Errorf("CommentCount = %d, want %d", content.CommentCount, voters)
	}
}
