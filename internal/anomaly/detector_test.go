package anomaly

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inkraft/sentinel/internal/models"
)

// fakeStore is a scripted Store for detector tests
type fakeStore struct {
	spikes      []ContentActivity
	spikeErr    error
	velocities  []AccountActivity
	velocityErr error
	voters      []AccountActivity
	voterErr    error

	alerts []*models.Alert
}

func (f *fakeStore) VoteSpikeCandidates(ctx context.Context, since time.Time, minVotes int64, limit int) ([]ContentActivity, error) {
	if f.spikeErr != nil {
		return nil, f.spikeErr
	}
	var out []ContentActivity
	for _, c := range f.spikes {
		if c.Count >= minVotes && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) CommentVelocities(ctx context.Context, since time.Time, minComments int64) ([]AccountActivity, error) {
	if f.velocityErr != nil {
		return nil, f.velocityErr
	}
	var out []AccountActivity
	for _, a := range f.velocities {
		if a.Count >= minComments {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) LowTrustVoters(ctx context.Context, since time.Time, trustCeiling float64, minVotes int64) ([]AccountActivity, error) {
	if f.voterErr != nil {
		return nil, f.voterErr
	}
	var out []AccountActivity
	for _, a := range f.voters {
		if a.TrustScore < trustCeiling && a.Count > minVotes {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) HasUnresolvedAlert(ctx context.Context, alertType string, targetAccountID, targetContentID int64, since time.Time) (bool, error) {
	for _, a := range f.alerts {
		if a.Resolved || a.Type != alertType || a.CreatedAt.Before(since) {
			continue
		}
		if a.TargetAccountID.Int64 == targetAccountID && a.TargetContentID.Int64 == targetContentID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CreateAlert(ctx context.Context, alert *models.Alert) error {
	f.alerts = append(f.alerts, alert)
	return nil
}

func newTestDetector(store Store) *Detector {
	d := New(store)
	d.now = func() time.Time {
		return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return d
}

func TestVoteSpikeSeverity(t *testing.T) {
	tests := []struct {
		name         string
		votes        int64
		wantSeverity string
		wantAlert    bool
	}{
		{"below prefilter", 29, "", false},
		{"prefilter but below high", 40, "", false},
		{"exactly high", 50, models.SeverityHigh, true},
		{"51 votes is high", 51, models.SeverityHigh, true},
		{"exactly critical", 100, models.SeverityCritical, true},
		{"101 votes is critical", 101, models.SeverityCritical, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{spikes: []ContentActivity{{ContentID: 10, Count: tt.votes}}}
			d := newTestDetector(store)

			created := d.RunSweep(context.Background())
			if tt.wantAlert {
				if created != 1 {
					t.Fatalf("created = %d, want 1", created)
				}
				if store.alerts[0].Severity != tt.wantSeverity {
					t.Errorf("severity = %s, want %s", store.alerts[0].Severity, tt.wantSeverity)
				}
				if store.alerts[0].TargetContentID.Int64 != 10 {
					t.Errorf("alert should target content 10")
				}
			} else if created != 0 {
				t.Errorf("created = %d, want 0", created)
			}
		})
	}
}

func TestVoteSpikeDedup(t *testing.T) {
	store := &fakeStore{spikes: []ContentActivity{{ContentID: 10, Count: 51}}}
	d := newTestDetector(store)
	ctx := context.Background()

	if created := d.RunSweep(ctx); created != 1 {
		t.Fatalf("first sweep created = %d, want 1", created)
	}

	// Votes keep arriving but the unresolved alert suppresses a
	// duplicate within the window.
	store.spikes[0].Count = 90
	if created := d.RunSweep(ctx); created != 0 {
		t.Errorf("second sweep created = %d, want 0 (dedup)", created)
	}
	if len(store.alerts) != 1 {
		t.Errorf("alerts = %d, want 1", len(store.alerts))
	}
}

func TestSpamVelocitySeverity(t *testing.T) {
	tests := []struct {
		name         string
		comments     int64
		wantSeverity string
		wantAlert    bool
	}{
		{"below threshold", 9, "", false},
		{"medium", 10, models.SeverityMedium, true},
		{"high", 20, models.SeverityHigh, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{velocities: []AccountActivity{{AccountID: 7, Count: tt.comments}}}
			d := newTestDetector(store)

			created := d.RunSweep(context.Background())
			if tt.wantAlert {
				if created != 1 {
					t.Fatalf("created = %d, want 1", created)
				}
				if store.alerts[0].Severity != tt.wantSeverity {
					t.Errorf("severity = %s, want %s", store.alerts[0].Severity, tt.wantSeverity)
				}
			} else if created != 0 {
				t.Errorf("created = %d, want 0", created)
			}
		})
	}
}

func TestLowTrustEngagement(t *testing.T) {
	// Account with trust 0.4 and 21 votes in 24h fires exactly once
	store := &fakeStore{voters: []AccountActivity{{AccountID: 3, Count: 21, TrustScore: 0.4}}}
	d := newTestDetector(store)
	ctx := context.Background()

	if created := d.RunSweep(ctx); created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}
	alert := store.alerts[0]
	if alert.Type != models.AlertLowTrustEngagement {
		t.Errorf("type = %s, want low_trust_engagement", alert.Type)
	}
	if alert.Severity != models.SeverityMedium {
		t.Errorf("severity = %s, want medium", alert.Severity)
	}

	// A 22nd vote inside the same window creates no second alert
	store.voters[0].Count = 22
	if created := d.RunSweep(ctx); created != 0 {
		t.Errorf("second sweep created = %d, want 0", created)
	}
}

func TestLowTrustThresholdBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		trust     float64
		votes     int64
		wantAlert bool
	}{
		{"exactly 20 votes does not fire", 0.4, 20, false},
		{"21 votes fires", 0.4, 21, true},
		{"trust at ceiling does not fire", 0.5, 30, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{voters: []AccountActivity{{AccountID: 3, Count: tt.votes, TrustScore: tt.trust}}}
			d := newTestDetector(store)

			created := d.RunSweep(context.Background())
			if tt.wantAlert && created != 1 {
				t.Errorf("created = %d, want 1", created)
			}
			if !tt.wantAlert && created != 0 {
				t.Errorf("created = %d, want 0", created)
			}
		})
	}
}

func TestRuleFailureIsolation(t *testing.T) {
	// The spike query fails; the other rules must still run.
	store := &fakeStore{
		spikeErr:   errors.New("query timeout"),
		velocities: []AccountActivity{{AccountID: 7, Count: 15}},
		voters:     []AccountActivity{{AccountID: 3, Count: 25, TrustScore: 0.3}},
	}
	d := newTestDetector(store)

	if created := d.RunSweep(context.Background()); created != 2 {
		t.Errorf("created = %d, want 2 despite the failed rule", created)
	}
}

func TestAlertMetadataRoundTrip(t *testing.T) {
	store := &fakeStore{spikes: []ContentActivity{{ContentID: 10, Count: 120}}}
	d := newTestDetector(store)
	d.RunSweep(context.Background())

	meta, err := store.alerts[0].DecodeMetadata()
	if err != nil {
		t.Fatalf("DecodeMetadata failed: %v", err)
	}
	spike, ok := meta.(*models.VoteSpikeMetadata)
	if !ok {
		t.Fatalf("metadata type = %T, want *VoteSpikeMetadata", meta)
	}
	if spike.VoteCount != 120 {
		t.Errorf("VoteCount = %d, want 120", spike.VoteCount)
	}
	if spike.Threshold != 100 {
		t.Errorf("Threshold = %d, want 100", spike.Threshold)
	}
}
