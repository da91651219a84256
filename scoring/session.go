package scoring

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"stockscore/types"

	"go.uber.org/zap"
)

// DefaultExplainTimeout bounds the single explanation attempt.
const DefaultExplainTimeout = 45 * time.Second

var (
	ErrSessionClosed       = errors.New("scoring session closed")
	ErrNoExplainer         = errors.New("explainer not configured")
	ErrNoNewsText          = errors.New("no news text to analyze")
	errCollaboratorMissing = errors.New("collaborator not configured")
)

// Pipeline wires the collaborators used by every Session.
type Pipeline struct {
	Resolver  *SectorResolver
	Peers     *PeerStatsAggregator
	Quotes    QuoteProvider
	DCF       DCFProvider
	News      NewsProvider
	Sentiment SentimentAnalyzer
	Explainer Explainer

	Timeout        time.Duration
	ExplainTimeout time.Duration

	// OnSettle runs when a generation has nothing left in flight.
	OnSettle func(PipelineState)
	// OnExplanation runs when an explanation request finishes.
	OnExplanation func(PipelineState)
}

// Score runs a one-off session for ticker and returns the settled state.
func (p *Pipeline) Score(ctx context.Context, ticker string) (PipelineState, error) {
	s := p.NewSession(ctx)
	defer s.Close()

	s.Select(ticker)
	return s.Wait(ctx)
}

type selectTicker struct {
	ticker string
	reply  chan uint64
}

func (selectTicker) Gen() uint64                         { return 0 }
func (selectTicker) apply(s PipelineState) PipelineState { return s }

// Session follows one active ticker at a time. A single loop goroutine
// applies events in order; every fetch belongs to a generation and events
// from older generations are dropped.
type Session struct {
	pipeline *Pipeline
	parent   context.Context
	events   chan Event
	quit     chan struct{}
	done     chan struct{}
	close    sync.Once

	mu        sync.Mutex
	snapshot  PipelineState
	settled   chan struct{}
	isSettled bool
	watchers  map[int]chan PipelineState
	nextWatch int

	// owned by the loop
	state    PipelineState
	genCtx   context.Context
	cancel   context.CancelFunc
	inflight int
}

// NewSession starts the event loop. It stops when ctx is done or Close is called.
func (p *Pipeline) NewSession(ctx context.Context) *Session {
	s := &Session{
		pipeline:  p,
		parent:    ctx,
		events:    make(chan Event, 16),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		settled:   make(chan struct{}),
		isSettled: true,
		watchers:  make(map[int]chan PipelineState),
		state:     NewPipelineState(0, ""),
	}
	close(s.settled)
	s.snapshot = s.state
	go s.loop()
	return s
}

// Select makes ticker the active one and returns its generation. In-flight
// work for the previous ticker is cancelled and its late results ignored.
func (s *Session) Select(ticker string) uint64 {
	reply := make(chan uint64, 1)
	select {
	case s.events <- selectTicker{ticker: ticker, reply: reply}:
	case <-s.quit:
		return 0
	case <-s.done:
		return 0
	}
	select {
	case gen := <-reply:
		return gen
	case <-s.done:
		return 0
	}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() PipelineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Wait blocks until the active generation has settled and returns its state.
func (s *Session) Wait(ctx context.Context) (PipelineState, error) {
	for {
		s.mu.Lock()
		ch, gen := s.settled, s.snapshot.Generation
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return s.Snapshot(), ctx.Err()
		case <-s.done:
			return s.Snapshot(), ErrSessionClosed
		}

		s.mu.Lock()
		snap, ok := s.snapshot, s.isSettled && s.snapshot.Generation == gen
		s.mu.Unlock()
		if ok {
			return snap, nil
		}
	}
}

// Subscribe streams every state change. Slow readers miss intermediate
// states, never the latest one for a settle. Call the returned func to stop.
func (s *Session) Subscribe() (<-chan PipelineState, func()) {
	ch := make(chan PipelineState, 32)

	s.mu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			if _, ok := s.watchers[id]; ok {
				delete(s.watchers, id)
				close(ch)
			}
			s.mu.Unlock()
		})
	}
}

// Close stops the loop and cancels whatever is still in flight.
func (s *Session) Close() {
	s.close.Do(func() { close(s.quit) })
	<-s.done
}

func (s *Session) post(ev Event) {
	select {
	case s.events <- ev:
	case <-s.quit:
	case <-s.done:
	}
}

func (s *Session) loop() {
	defer func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Lock()
		for id, ch := range s.watchers {
			delete(s.watchers, id)
			close(ch)
		}
		s.mu.Unlock()
		close(s.done)
	}()

	for {
		select {
		case <-s.quit:
			return
		case <-s.parent.Done():
			return
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

func (s *Session) handle(ev Event) {
	if sel, ok := ev.(selectTicker); ok {
		sel.reply <- s.start(sel.ticker)
		return
	}
	if ev.Gen() != s.state.Generation {
		zap.L().Debug("Dropping stale pipeline event",
			zap.Uint64("generation", ev.Gen()),
			zap.Uint64("current", s.state.Generation))
		return
	}

	prevStatus := s.state.ExplanationStatus
	s.state = s.state.Apply(ev)
	switch ev.(type) {
	case ExplanationStarted:
	case PeersResolved:
	default:
		s.inflight--
	}

	if _, ok := ev.(ExplanationCompleted); ok && prevStatus == ExplanationPending && s.pipeline.OnExplanation != nil {
		go s.pipeline.OnExplanation(s.state)
	}

	if key, ok := s.state.NeedsExplanation(); ok {
		s.explain(key)
	}
	s.publish()
}

func (s *Session) start(ticker string) uint64 {
	if s.cancel != nil {
		s.cancel()
	}
	gen := s.state.Generation + 1
	ctx, cancel := context.WithCancel(s.parent)
	s.genCtx, s.cancel = ctx, cancel
	s.state = NewPipelineState(gen, ticker)
	s.inflight = 0

	s.mu.Lock()
	if !s.isSettled {
		// wake waiters of the superseded generation
		close(s.settled)
	}
	s.settled = make(chan struct{})
	s.isSettled = false
	s.mu.Unlock()

	zap.L().Info("Pipeline generation started", zap.String("ticker", s.state.Ticker), zap.Uint64("generation", gen))

	var group PeerGroup
	if s.pipeline.Resolver != nil {
		group = s.pipeline.Resolver.Resolve(s.state.Ticker)
	} else {
		group = PeerGroup{Sector: SectorUnknown}
	}
	s.state = s.state.Apply(PeersResolved{Generation: gen, Group: group})

	if s.state.Ticker == "" {
		s.publish()
		return gen
	}

	s.inflight = 4
	go s.fetchPeerStats(ctx, gen, group)
	go s.fetchDCF(ctx, gen, s.state.Ticker)
	go s.fetchCompanyAndSentiment(ctx, gen, s.state.Ticker)
	s.publish()
	return gen
}

func (s *Session) publish() {
	settledNow := false

	s.mu.Lock()
	s.snapshot = s.state
	if s.inflight == 0 && !s.isSettled {
		s.isSettled = true
		settledNow = true
		close(s.settled)
	}
	for _, ch := range s.watchers {
		select {
		case ch <- s.state:
		default:
			// drop the oldest so the newest state is always delivered
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s.state:
			default:
			}
		}
	}
	s.mu.Unlock()

	if settledNow && s.state.Ticker != "" && s.pipeline.OnSettle != nil {
		go s.pipeline.OnSettle(s.state)
	}
}

func (s *Session) explain(key ExplanationKey) {
	gen := s.state.Generation
	s.state = s.state.Apply(ExplanationStarted{Generation: gen, Key: key})
	s.inflight++

	in := s.state.ExplanationContext()
	explainer := s.pipeline.Explainer
	timeout := s.pipeline.ExplainTimeout
	if timeout <= 0 {
		timeout = DefaultExplainTimeout
	}
	// a ticker change cancels genCtx and abandons the call
	parent := s.genCtx

	go func() {
		if explainer == nil {
			s.post(ExplanationCompleted{Generation: gen, Key: key, Err: ErrNoExplainer})
			return
		}
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()

		text, err := explainer.Explain(ctx, in)
		if err != nil {
			zap.L().Error("Explanation request failed", zap.String("ticker", in.Symbol), zap.Error(err))
		} else if strings.TrimSpace(text) == "" {
			err = errors.New("explainer returned no text")
		}
		s.post(ExplanationCompleted{Generation: gen, Key: key, Text: text, Err: err})
	}()
}

func (s *Session) fetchPeerStats(ctx context.Context, gen uint64, group PeerGroup) {
	var stats PeerStats
	if s.pipeline.Peers != nil {
		stats = s.pipeline.Peers.Compute(ctx, group)
	}
	s.post(PeerStatsResolved{Generation: gen, Stats: stats})
}

func (s *Session) fetchDCF(ctx context.Context, gen uint64, ticker string) {
	if s.pipeline.DCF == nil {
		s.post(DCFResolved{Generation: gen, Err: errCollaboratorMissing})
		return
	}
	callCtx, cancel := withTimeout(ctx, s.pipeline.Timeout)
	defer cancel()

	value, err := s.pipeline.DCF.DCF(callCtx, ticker)
	if err != nil {
		zap.L().Warn("DCF fetch failed", zap.String("ticker", ticker), zap.Error(err))
	}
	s.post(DCFResolved{Generation: gen, Value: value, Err: err})
}

// fetchCompanyAndSentiment resolves the target quote and then, using the
// company name it carries, the news text and its sentiment.
func (s *Session) fetchCompanyAndSentiment(ctx context.Context, gen uint64, ticker string) {
	company, err := s.fetchCompany(ctx, ticker)
	s.post(CompanyResolved{Generation: gen, Company: company, Err: err})
	if err != nil {
		s.post(SentimentResolved{Generation: gen, Err: err})
		return
	}

	text, results, err := s.fetchSentiment(ctx, company.Name())
	if err != nil {
		zap.L().Warn("Sentiment unavailable", zap.String("ticker", ticker), zap.Error(err))
	}
	s.post(SentimentResolved{Generation: gen, Text: text, Results: results, Err: err})
}

func (s *Session) fetchCompany(ctx context.Context, ticker string) (company types.CompanyMetrics, err error) {
	if s.pipeline.Quotes == nil {
		return company, errCollaboratorMissing
	}
	callCtx, cancel := withTimeout(ctx, s.pipeline.Timeout)
	defer cancel()

	company, err = s.pipeline.Quotes.Quote(callCtx, ticker)
	if err != nil {
		zap.L().Warn("Company quote failed", zap.String("ticker", ticker), zap.Error(err))
		return company, err
	}
	if company.Symbol == "" {
		company.Symbol = ticker
	}
	return company, nil
}

func (s *Session) fetchSentiment(ctx context.Context, name string) (string, []types.SentimentResult, error) {
	if s.pipeline.News == nil || s.pipeline.Sentiment == nil {
		return "", nil, errCollaboratorMissing
	}

	newsCtx, cancel := withTimeout(ctx, s.pipeline.Timeout)
	articles, err := s.pipeline.News.News(newsCtx, name)
	cancel()
	if err != nil {
		return "", nil, err
	}

	text := BuildNewsText(articles)
	if text == "" {
		return "", nil, ErrNoNewsText
	}

	analyzeCtx, cancel := withTimeout(ctx, s.pipeline.Timeout)
	defer cancel()
	results, err := s.pipeline.Sentiment.Analyze(analyzeCtx, text, name)
	return text, results, err
}
