package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockscore/scoring"

	"github.com/getsentry/sentry-go"
	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var ErrEmptySectorTable = errors.New("sector source returned no sectors")

// SectorLoader reads a full sector table from some source.
type SectorLoader interface {
	LoadSectors(ctx context.Context) (scoring.SectorTable, error)
}

type sectorDocument struct {
	Sector  string   `bson:"sector"`
	Tickers []string `bson:"tickers"`
}

// MongoSectorLoader reads {sector, tickers} documents from a collection.
type MongoSectorLoader struct {
	Collection *mongo.Collection
}

func (m *MongoSectorLoader) LoadSectors(ctx context.Context) (scoring.SectorTable, error) {
	filter := bson.M{"sector": bson.M{"$exists": true, "$ne": ""}}
	cursor, err := m.Collection.Find(ctx, filter, options.Find().SetSort(bson.M{"sector": 1}))
	if err != nil {
		return nil, fmt.Errorf("find sectors: %w", err)
	}
	defer cursor.Close(ctx)

	table := scoring.SectorTable{}
	for cursor.Next(ctx) {
		var doc sectorDocument
		if err := cursor.Decode(&doc); err != nil {
			zap.L().Warn("Skipping undecodable sector document", zap.Error(err))
			continue
		}
		table[doc.Sector] = append(table[doc.Sector], doc.Tickers...)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate sectors: %w", err)
	}
	return table, nil
}

// SectorService keeps the resolver's table in sync with a loader.
type SectorService struct {
	resolver *scoring.SectorResolver
	loader   SectorLoader
	timeout  time.Duration
	cron     *cron.Cron
}

func NewSectorService(resolver *scoring.SectorResolver, loader SectorLoader) *SectorService {
	return &SectorService{resolver: resolver, loader: loader, timeout: 30 * time.Second}
}

// Reload replaces the table. On any failure the previous table stays.
func (s *SectorService) Reload(ctx context.Context) error {
	if s.loader == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	table, err := s.loader.LoadSectors(ctx)
	if err != nil {
		sentry.CaptureException(err)
		zap.L().Error("Sector reload failed, keeping previous table", zap.Error(err))
		return err
	}
	table = scoring.CleanSectorTable(table)
	if len(table) == 0 {
		zap.L().Warn("Sector source has no usable sectors, keeping previous table")
		return ErrEmptySectorTable
	}

	kept := s.resolver.Replace(table)
	zap.L().Info("Sector table reloaded", zap.Int("sectors", kept))
	return nil
}

// Start schedules Reload on schedule (standard five-field cron).
func (s *SectorService) Start(schedule string) error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(schedule, func() {
		_ = s.Reload(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule sector reload: %w", err)
	}
	s.cron.Start()
	zap.L().Info("Sector reload scheduled", zap.String("cron", schedule))
	return nil
}

// Stop halts the schedule and waits for a running reload.
func (s *SectorService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
