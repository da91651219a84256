package services

import (
	"errors"
	"testing"

	"stockscore/config"
	"stockscore/scoring"
	"stockscore/types"
)

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(types.ScoreEvent) error {
	f.calls++
	return errors.New("broker down")
}

func (f *failingPublisher) Close() {}

func TestNewScoreEvent(t *testing.T) {
	state := scoring.NewPipelineState(3, "MID")
	state.Peers = scoring.PeerGroup{Sector: "Technology"}
	state.Stage = scoring.StageScoreReady
	state.Score = scoring.Aggregate(0, 0.375, scoring.Resolved(0.75), scoring.Pending())
	state.ExplanationStatus = scoring.ExplanationPending

	event := NewScoreEvent(state, types.ScoreSettled)

	if event.ID == "" || event.CreatedAt.IsZero() {
		t.Errorf("Expected id and timestamp, got %+v", event)
	}
	if event.Symbol != "MID" || event.Sector != "Technology" || event.Stage != "score_ready" {
		t.Errorf("Unexpected event %+v", event)
	}
	if event.NormDCF == nil || *event.NormDCF != 0.75 {
		t.Errorf("Expected normDCF 0.75, got %v", event.NormDCF)
	}
	if event.Sentiment != nil {
		t.Errorf("Expected pending sentiment to be nil, got %v", *event.Sentiment)
	}
	if event.ExplanationStatus != "pending" {
		t.Errorf("Expected pending, got %v", event.ExplanationStatus)
	}
}

func TestEventService_ExplanationEventType(t *testing.T) {
	rec := &recordingPublisher{}
	svc := NewEventService(rec)

	state := scoring.NewPipelineState(1, "MID")
	state.ExplanationStatus = scoring.ExplanationReady
	svc.ExplanationFinished(state)
	state.ExplanationStatus = scoring.ExplanationUnavailable
	svc.ExplanationFinished(state)
	svc.ScoreSettled(state)

	got := rec.Types()
	want := []types.EventType{types.ExplanationReady, types.ExplanationFailed, types.ScoreSettled}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want[i], got[i])
		}
	}
}

func TestEventService_PublishErrorIsSwallowed(t *testing.T) {
	pub := &failingPublisher{}
	svc := NewEventService(pub)
	svc.ScoreSettled(scoring.NewPipelineState(1, "MID"))
	if pub.calls != 1 {
		t.Errorf("Expected 1 publish attempt, got %d", pub.calls)
	}
}

func TestNewEventPublisher(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	pub, err := NewEventPublisher(cfg)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, ok := pub.(noopPublisher); !ok {
		t.Errorf("Expected noop publisher, got %T", pub)
	}

	cfg.Events.Driver = "carrier-pigeon"
	if _, err := NewEventPublisher(cfg); err == nil {
		t.Error("Expected unknown driver error")
	}

	if NewEventService(nil) == nil {
		t.Error("Expected a usable service")
	}
}
