package scoring

import (
	"encoding/json"
	"fmt"

	"stockscore/types"
)

// Stage is where a pipeline generation is in its life.
type Stage int

const (
	StageEmpty Stage = iota
	StageAwaitingPeerStats
	StageAwaitingMetrics
	StageScoreReady
	StageExplained
)

func (s Stage) String() string {
	switch s {
	case StageEmpty:
		return "empty"
	case StageAwaitingPeerStats:
		return "awaiting_peer_stats"
	case StageAwaitingMetrics:
		return "awaiting_metrics"
	case StageScoreReady:
		return "score_ready"
	case StageExplained:
		return "explained"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

func (s Stage) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

type ExplanationStatus string

const (
	ExplanationNone        ExplanationStatus = "none"
	ExplanationPending     ExplanationStatus = "pending"
	ExplanationReady       ExplanationStatus = "ready"
	ExplanationUnavailable ExplanationStatus = "unavailable"
)

// ExplanationKey identifies a ready score. One explanation is requested per key.
type ExplanationKey struct {
	NormPE    float64
	NormEPS   float64
	NormDCF   float64
	Sentiment float64
}

// PipelineState is the full state of one generation. Values are never
// mutated in place: Apply returns a new state.
type PipelineState struct {
	Generation uint64 `json:"generation"`
	Ticker     string `json:"ticker"`
	Stage      Stage  `json:"stage"`

	Peers         PeerGroup `json:"peers"`
	Stats         PeerStats `json:"peerStats"`
	StatsResolved bool      `json:"peerStatsResolved"`

	Company         types.CompanyMetrics `json:"company"`
	CompanyResolved bool                 `json:"companyResolved"`
	CompanyError    string               `json:"companyError,omitempty"`

	DCF          Reading `json:"dcf"`
	DCFError     string  `json:"dcfError,omitempty"`
	Sentiment    Reading `json:"sentimentRaw"`
	SentimentErr string  `json:"sentimentError,omitempty"`
	NewsText     string  `json:"-"`

	Normalized NormalizedMetrics `json:"normalized"`
	Score      Score             `json:"score"`

	Explanation       string            `json:"explanation"`
	ExplanationStatus ExplanationStatus `json:"explanationStatus"`
	ExplanationError  string            `json:"explanationError,omitempty"`

	requested    ExplanationKey
	hasRequested bool
}

// NewPipelineState is the Empty state for a freshly selected ticker.
func NewPipelineState(generation uint64, ticker string) PipelineState {
	return PipelineState{
		Generation:        generation,
		Ticker:            NormalizeTicker(ticker),
		Stage:             StageEmpty,
		ExplanationStatus: ExplanationNone,
	}
}

// Event is a resolved input for one generation.
type Event interface {
	Gen() uint64
	apply(s PipelineState) PipelineState
}

type PeersResolved struct {
	Generation uint64
	Group      PeerGroup
}

type PeerStatsResolved struct {
	Generation uint64
	Stats      PeerStats
}

type CompanyResolved struct {
	Generation uint64
	Company    types.CompanyMetrics
	Err        error
}

type DCFResolved struct {
	Generation uint64
	Value      float64
	Err        error
}

type SentimentResolved struct {
	Generation uint64
	Text       string
	Results    []types.SentimentResult
	Err        error
}

type ExplanationStarted struct {
	Generation uint64
	Key        ExplanationKey
}

type ExplanationCompleted struct {
	Generation uint64
	Key        ExplanationKey
	Text       string
	Err        error
}

func (e PeersResolved) Gen() uint64        { return e.Generation }
func (e PeerStatsResolved) Gen() uint64    { return e.Generation }
func (e CompanyResolved) Gen() uint64      { return e.Generation }
func (e DCFResolved) Gen() uint64          { return e.Generation }
func (e SentimentResolved) Gen() uint64    { return e.Generation }
func (e ExplanationStarted) Gen() uint64   { return e.Generation }
func (e ExplanationCompleted) Gen() uint64 { return e.Generation }

// Apply folds ev into the state. Events from another generation are stale
// and leave the state untouched.
func (s PipelineState) Apply(ev Event) PipelineState {
	if ev == nil || ev.Gen() != s.Generation {
		return s
	}
	return ev.apply(s)
}

func (e PeersResolved) apply(s PipelineState) PipelineState {
	s.Peers = PeerGroup{Sector: e.Group.Sector, Symbols: append([]string(nil), e.Group.Symbols...)}
	if s.Stage == StageEmpty {
		s.Stage = StageAwaitingPeerStats
	}
	return s.recompute()
}

func (e PeerStatsResolved) apply(s PipelineState) PipelineState {
	s.Stats = e.Stats
	s.StatsResolved = true
	if s.Stage < StageAwaitingMetrics {
		s.Stage = StageAwaitingMetrics
	}
	return s.recompute()
}

func (e CompanyResolved) apply(s PipelineState) PipelineState {
	if e.Err != nil {
		s.CompanyError = e.Err.Error()
		return s.recompute()
	}
	s.Company = e.Company
	s.CompanyResolved = true
	s.CompanyError = ""
	return s.recompute()
}

func (e DCFResolved) apply(s PipelineState) PipelineState {
	switch {
	case e.Err != nil:
		s.DCF = Pending()
		s.DCFError = e.Err.Error()
	case e.Value == 0:
		// 0 is what an unfetched value looks like; keep it pending
		s.DCF = Pending()
	default:
		s.DCF = Resolved(e.Value)
		s.DCFError = ""
	}
	return s.recompute()
}

func (e SentimentResolved) apply(s PipelineState) PipelineState {
	s.NewsText = e.Text
	if e.Err != nil {
		s.Sentiment = Pending()
		s.SentimentErr = e.Err.Error()
		return s.recompute()
	}
	s.Sentiment = EffectiveSentiment(e.Results)
	s.SentimentErr = ""
	return s.recompute()
}

func (e ExplanationStarted) apply(s PipelineState) PipelineState {
	if s.Stage != StageScoreReady || s.Key() != e.Key {
		return s
	}
	s.requested = e.Key
	s.hasRequested = true
	s.Explanation = ""
	s.ExplanationError = ""
	s.ExplanationStatus = ExplanationPending
	return s
}

func (e ExplanationCompleted) apply(s PipelineState) PipelineState {
	if !s.hasRequested || s.requested != e.Key {
		return s
	}
	if e.Err != nil {
		s.Explanation = ""
		s.ExplanationError = e.Err.Error()
		s.ExplanationStatus = ExplanationUnavailable
	} else {
		s.Explanation = e.Text
		s.ExplanationError = ""
		s.ExplanationStatus = ExplanationReady
	}
	if s.Key() == e.Key {
		s.Stage = StageExplained
	}
	return s
}

// Key is the tuple the explanation dedup runs on.
func (s PipelineState) Key() ExplanationKey {
	return ExplanationKey{
		NormPE:    s.Score.NormPE,
		NormEPS:   s.Score.NormEPS,
		NormDCF:   s.Score.NormDCF.Value,
		Sentiment: s.Score.Sentiment.Value,
	}
}

// companyUsable reports whether the target quote can produce PE and EPS.
func (s PipelineState) companyUsable() bool {
	_, ok := CompanyPE(s.Company)
	return s.CompanyResolved && ok
}

// Ready reports whether every component is resolved and the total is positive.
func (s PipelineState) Ready() bool {
	return s.StatsResolved &&
		s.companyUsable() &&
		s.Score.NormDCF.Resolved &&
		s.Score.Sentiment.Resolved &&
		s.Score.Total > 0
}

// NeedsExplanation returns the key to explain when the state is ready and
// that key has not been requested yet.
func (s PipelineState) NeedsExplanation() (ExplanationKey, bool) {
	if s.Stage != StageScoreReady {
		return ExplanationKey{}, false
	}
	key := s.Key()
	if s.hasRequested && s.requested == key {
		return ExplanationKey{}, false
	}
	return key, true
}

func (s PipelineState) recompute() PipelineState {
	s.Normalized = Normalize(s.Company, s.Stats, s.DCF)
	s.Score = Aggregate(s.Normalized.PE, s.Normalized.EPS, s.Normalized.DCF, s.Sentiment)

	if s.Stage < StageAwaitingMetrics {
		return s
	}
	ready := s.Ready()
	switch {
	case ready && s.hasRequested && s.requested == s.Key() && s.ExplanationStatus != ExplanationPending:
		s.Stage = StageExplained
	case ready:
		s.Stage = StageScoreReady
	default:
		s.Stage = StageAwaitingMetrics
	}
	return s
}

// ExplanationContext is the structured input handed to the Explainer.
func (s PipelineState) ExplanationContext() ExplanationContext {
	return ExplanationContext{
		Symbol:     s.Ticker,
		Company:    s.Company.Name(),
		Sector:     s.Peers.Sector,
		Metrics:    s.Score.Breakdown(),
		Total:      s.Score.Total,
		NominalMax: NominalMaxScore,
		Cap:        MaxScore,
	}
}

// ExplanationContext describes a score for the explainer prompt.
type ExplanationContext struct {
	Symbol     string
	Company    string
	Sector     string
	Metrics    []WeightedMetric
	Total      float64
	NominalMax float64
	Cap        float64
}
