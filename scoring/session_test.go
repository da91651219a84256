package scoring

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stockscore/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDCF struct {
	values map[string]float64

	// symbols in gate block until their channel closes, ignoring ctx
	gate    map[string]chan struct{}
	started chan string
}

func (f *fakeDCF) DCF(ctx context.Context, symbol string) (float64, error) {
	if g, ok := f.gate[symbol]; ok {
		if f.started != nil {
			f.started <- symbol
		}
		<-g
	}
	v, ok := f.values[symbol]
	if !ok {
		return 0, types.ErrNotFound
	}
	return v, nil
}

type fakeNews struct {
	mu      sync.Mutex
	queries []string
}

func (f *fakeNews) News(ctx context.Context, company string) ([]types.NewsArticle, error) {
	f.mu.Lock()
	f.queries = append(f.queries, company)
	f.mu.Unlock()
	return []types.NewsArticle{
		{Title: "Record quarter", Description: "<p>Revenue beat expectations.</p>"},
		{Title: "Guidance", Description: "Outlook raised for next year."},
	}, nil
}

type fakeSentiment struct {
	score float64
	err   error
}

func (f *fakeSentiment) Analyze(ctx context.Context, text, entity string) ([]types.SentimentResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	v := f.score
	return []types.SentimentResult{{Entity: entity, Score: &v, Label: "positive"}}, nil
}

type fakeExplainer struct {
	calls atomic.Int32
	text  string
	err   error
	// block until ctx is done
	hang bool
}

func (f *fakeExplainer) Explain(ctx context.Context, in ExplanationContext) (string, error) {
	f.calls.Add(1)
	if f.hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.text, f.err
}

func newTestPipeline(explainer Explainer) (*Pipeline, *MockQuotes, *fakeDCF) {
	quotes := &MockQuotes{Quotes: workedExamplePeers()}
	quotes.Quotes["OLD"] = quote("OLD", 40, 4)
	quotes.Quotes["ZZZ"] = quote("ZZZ", 50, 5)

	dcf := &fakeDCF{values: map[string]float64{"MID": 150, "OLD": 999, "ZZZ": 75, "LOW": 10, "TOP": 500}}

	p := &Pipeline{
		Resolver:  NewSectorResolver(SectorTable{"Test": {"LOW", "MID", "TOP"}, "Other": {"OLD"}}),
		Peers:     NewPeerStatsAggregator(quotes, time.Second),
		Quotes:    quotes,
		DCF:       dcf,
		News:      &fakeNews{},
		Sentiment: &fakeSentiment{score: 0.6},
		Explainer: explainer,
		Timeout:   time.Second,
	}
	return p, quotes, dcf
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestPipeline_ScoreWorkedExample(t *testing.T) {
	explainer := &fakeExplainer{text: "MID trades at its sector median PE."}
	p, _, _ := newTestPipeline(explainer)

	state, err := p.Score(testContext(t), "mid")
	require.NoError(t, err)

	assert.Equal(t, "MID", state.Ticker)
	assert.Equal(t, "Test", state.Peers.Sector)
	assert.Equal(t, 3, state.Stats.ValidPeers)
	assert.InDelta(t, 0.0, state.Score.NormPE, 1e-9)
	assert.InDelta(t, 0.375, state.Score.NormEPS, 1e-9)
	assert.InDelta(t, 0.75, state.Score.NormDCF.Value, 1e-9)
	assert.InDelta(t, 0.6, state.Score.Sentiment.Value, 1e-9)
	assert.InDelta(t, 34.5, state.Score.Total, 1e-9)

	assert.Equal(t, StageExplained, state.Stage)
	assert.Equal(t, ExplanationReady, state.ExplanationStatus)
	assert.Equal(t, "MID trades at its sector median PE.", state.Explanation)
	assert.Equal(t, int32(1), explainer.calls.Load())
	assert.Equal(t, "Revenue beat expectations. Outlook raised for next year.", state.NewsText)
}

func TestSession_NewsQueriedByCompanyName(t *testing.T) {
	p, _, _ := newTestPipeline(&fakeExplainer{text: "ok"})
	news := p.News.(*fakeNews)

	_, err := p.Score(testContext(t), "MID")
	require.NoError(t, err)

	news.mu.Lock()
	defer news.mu.Unlock()
	assert.Equal(t, []string{"MID Inc."}, news.queries)
}

func TestSession_ExplanationRequestedOnce(t *testing.T) {
	explainer := &fakeExplainer{text: "Fine."}
	p, _, _ := newTestPipeline(explainer)
	ctx := testContext(t)

	s := p.NewSession(ctx)
	defer s.Close()

	s.Select("MID")
	_, err := s.Wait(ctx)
	require.NoError(t, err)

	assert.Never(t, func() bool { return explainer.calls.Load() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, StageExplained, s.Snapshot().Stage)
}

func TestSession_ExplanationFailureIsNotRetried(t *testing.T) {
	explainer := &fakeExplainer{err: errors.New("quota exceeded")}
	p, _, _ := newTestPipeline(explainer)
	ctx := testContext(t)

	s := p.NewSession(ctx)
	defer s.Close()

	s.Select("MID")
	state, err := s.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, StageExplained, state.Stage)
	assert.Equal(t, ExplanationUnavailable, state.ExplanationStatus)
	assert.Contains(t, state.ExplanationError, "quota exceeded")
	assert.Empty(t, state.Explanation)
	assert.InDelta(t, 34.5, state.Score.Total, 1e-9)
	assert.Never(t, func() bool { return explainer.calls.Load() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestSession_ExplanationTimeout(t *testing.T) {
	explainer := &fakeExplainer{hang: true}
	p, _, _ := newTestPipeline(explainer)
	p.ExplainTimeout = 20 * time.Millisecond

	state, err := p.Score(testContext(t), "MID")
	require.NoError(t, err)

	assert.Equal(t, ExplanationUnavailable, state.ExplanationStatus)
	assert.Contains(t, state.ExplanationError, context.DeadlineExceeded.Error())
}

func TestSession_MissingExplainer(t *testing.T) {
	p, _, _ := newTestPipeline(nil)

	state, err := p.Score(testContext(t), "MID")
	require.NoError(t, err)

	assert.Equal(t, ExplanationUnavailable, state.ExplanationStatus)
	assert.Equal(t, ErrNoExplainer.Error(), state.ExplanationError)
}

func TestSession_TickerChangeDropsLateResults(t *testing.T) {
	explainer := &fakeExplainer{text: "ok"}
	p, _, dcf := newTestPipeline(explainer)
	gate := make(chan struct{})
	dcf.gate = map[string]chan struct{}{"OLD": gate}
	dcf.started = make(chan string, 1)
	ctx := testContext(t)

	s := p.NewSession(ctx)
	defer s.Close()

	first := s.Select("OLD")
	select {
	case <-dcf.started:
	case <-ctx.Done():
		t.Fatal("OLD DCF fetch never started")
	}

	second := s.Select("MID")
	require.Greater(t, second, first)

	state, err := s.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "MID", state.Ticker)
	assert.Equal(t, second, state.Generation)

	// the OLD response arrives after MID has settled
	close(gate)
	assert.Never(t, func() bool {
		snap := s.Snapshot()
		return snap.DCF.Value == 999 || snap.Ticker != "MID"
	}, 100*time.Millisecond, 5*time.Millisecond)

	final := s.Snapshot()
	assert.InDelta(t, 150.0, final.DCF.Value, 1e-9)
	assert.InDelta(t, 34.5, final.Score.Total, 1e-9)
	assert.Equal(t, int32(1), explainer.calls.Load())
}

func TestSession_UnknownTickerStillScores(t *testing.T) {
	p, _, _ := newTestPipeline(&fakeExplainer{text: "ok"})

	state, err := p.Score(testContext(t), "ZZZ")
	require.NoError(t, err)

	assert.Equal(t, SectorUnknown, state.Peers.Sector)
	assert.Empty(t, state.Peers.Symbols)
	assert.Equal(t, 0, state.Stats.ValidPeers)
	assert.InDelta(t, 0.0, state.Score.NormPE, 1e-9)
	assert.InDelta(t, 0.0, state.Score.NormEPS, 1e-9)
	// DCF 75 / price 50 -> 0.75, sentiment 0.6
	assert.InDelta(t, 27.0, state.Score.Total, 1e-9)
}

func TestSession_CompanyFailureLeavesScorePending(t *testing.T) {
	explainer := &fakeExplainer{text: "ok"}
	p, quotes, _ := newTestPipeline(explainer)
	quotes.Errors = map[string]error{"MID": types.ErrUnavailable}

	state, err := p.Score(testContext(t), "MID")
	require.NoError(t, err)

	assert.Equal(t, StageAwaitingMetrics, state.Stage)
	assert.False(t, state.CompanyResolved)
	assert.NotEmpty(t, state.CompanyError)
	assert.False(t, state.Score.Sentiment.Resolved)
	// LOW and TOP still make up the peer set
	assert.Equal(t, 2, state.Stats.ValidPeers)
	assert.Equal(t, int32(0), explainer.calls.Load())
	assert.Equal(t, ExplanationNone, state.ExplanationStatus)
}

func TestSession_SentimentFailureKeepsSentimentPending(t *testing.T) {
	explainer := &fakeExplainer{text: "ok"}
	p, _, _ := newTestPipeline(explainer)
	p.Sentiment = &fakeSentiment{err: types.ErrUnavailable}

	state, err := p.Score(testContext(t), "MID")
	require.NoError(t, err)

	assert.False(t, state.Score.Sentiment.Resolved)
	assert.NotEmpty(t, state.SentimentErr)
	// PE 0 + EPS 7.5 + DCF 15
	assert.InDelta(t, 22.5, state.Score.Total, 1e-9)
	assert.Equal(t, StageAwaitingMetrics, state.Stage)
	assert.Equal(t, int32(0), explainer.calls.Load())
}

func TestSession_SubscribeDeliversLatestState(t *testing.T) {
	p, _, _ := newTestPipeline(&fakeExplainer{text: "ok"})
	ctx := testContext(t)

	s := p.NewSession(ctx)
	defer s.Close()

	updates, stop := s.Subscribe()
	defer stop()

	s.Select("MID")

	var last PipelineState
	for last.Stage != StageExplained {
		select {
		case st, ok := <-updates:
			require.True(t, ok, "updates closed early")
			last = st
		case <-ctx.Done():
			t.Fatalf("no explained state received, last stage %v", last.Stage)
		}
	}
	assert.Equal(t, "MID", last.Ticker)
	assert.InDelta(t, 34.5, last.Score.Total, 1e-9)
}

func TestSession_OnSettleHook(t *testing.T) {
	p, _, _ := newTestPipeline(&fakeExplainer{text: "ok"})
	settled := make(chan PipelineState, 1)
	p.OnSettle = func(st PipelineState) { settled <- st }

	_, err := p.Score(testContext(t), "MID")
	require.NoError(t, err)

	select {
	case st := <-settled:
		assert.Equal(t, "MID", st.Ticker)
		assert.Equal(t, StageExplained, st.Stage)
	case <-time.After(time.Second):
		t.Fatal("OnSettle was not called")
	}
}

func TestSession_CloseStopsSubscribers(t *testing.T) {
	p, _, _ := newTestPipeline(nil)
	s := p.NewSession(context.Background())
	updates, _ := s.Subscribe()

	s.Close()

	_, ok := <-updates
	assert.False(t, ok)
	assert.Equal(t, uint64(0), s.Select("MID"))
}

func TestSession_SelectAfterContextEndsDoesNotBlock(t *testing.T) {
	p, _, _ := newTestPipeline(nil)
	ctx, cancel := context.WithCancel(context.Background())
	s := p.NewSession(ctx)
	cancel()
	<-s.done

	for len(s.events) < cap(s.events) {
		s.events <- DCFResolved{Generation: 99}
	}

	result := make(chan uint64, 1)
	go func() { result <- s.Select("MID") }()

	select {
	case gen := <-result:
		assert.Equal(t, uint64(0), gen)
	case <-time.After(time.Second):
		t.Fatal("Select blocked after the session stopped")
	}
}
