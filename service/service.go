package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"

	"safety-poll-service/aggregate"
	"safety-poll-service/config"
	"safety-poll-service/database"
	"safety-poll-service/geo"
	"safety-poll-service/handlers"
	"safety-poll-service/metrics"
	"safety-poll-service/rabbitmq"
	ws "safety-poll-service/websocket"
)

// Service wires the report store, geo index, aggregation engine and live
// feed together. The store is the only durable state; the index is
// rebuilt from it on every start.
type Service struct {
	config    *config.Config
	db        *database.Database
	index     *geo.Index
	engine    *aggregate.Engine
	hub       *ws.Hub
	publisher *rabbitmq.Publisher
	handlers  *handlers.Handlers

	// State tracking for the broadcast loop
	lastProcessedSeq int64
	mu               sync.RWMutex

	// Control channels
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewService creates the service and its dependencies.
func NewService(cfg *config.Config) (*Service, error) {
	db, err := database.NewDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if err := database.InitSchema(db.DB()); err != nil {
		return nil, err
	}

	index := geo.NewIndex(cfg.BucketResolutionDeg)
	engine := aggregate.NewEngine(db, index, cfg.HeatmapWindowDays)
	hub := ws.NewHub()

	var publisher *rabbitmq.Publisher
	if cfg.AMQPUrl != "" {
		publisher, err = rabbitmq.NewPublisher(cfg.AMQPUrl, cfg.AMQPExchange, cfg.AMQPRoutingKey)
		if err != nil {
			// Downstream publishing is best-effort; the service still
			// serves without it.
			log.Warnf("RabbitMQ publisher disabled: %v", err)
			publisher = nil
		}
	}

	svc := &Service{
		config:    cfg,
		db:        db,
		index:     index,
		engine:    engine,
		hub:       hub,
		publisher: publisher,
		stopChan:  make(chan struct{}),
	}

	var pub handlers.Publisher
	if publisher != nil {
		pub = publisher
	}
	svc.handlers = handlers.NewHandlers(db, engine, index, hub, pub)

	return svc, nil
}

// Start rebuilds the geo index from the store and starts the hub and
// broadcast loop.
func (s *Service) Start() error {
	log.Info("Starting safety poll service...")

	ctx := context.Background()
	if err := s.index.RebuildFromStore(ctx, s.db); err != nil {
		return fmt.Errorf("failed to rebuild geo index: %w", err)
	}
	metrics.IndexedBuckets.Set(float64(s.index.Len()))

	go s.hub.Run()

	latest, err := s.db.GetLatestReportSeq(ctx)
	if err != nil {
		return fmt.Errorf("failed to get latest report seq: %w", err)
	}
	s.mu.Lock()
	s.lastProcessedSeq = latest
	s.mu.Unlock()

	s.wg.Add(1)
	go s.broadcastLoop()

	log.Info("Safety poll service started successfully")
	return nil
}

// Stop stops the service gracefully
func (s *Service) Stop() error {
	log.Info("Stopping safety poll service...")

	close(s.stopChan)
	s.wg.Wait()

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Errorf("Error closing publisher: %v", err)
		}
	}

	if err := s.db.Close(); err != nil {
		log.Errorf("Error closing database: %v", err)
	}

	log.Info("Safety poll service stopped")
	return nil
}

// GetHandlers returns the HTTP handlers
func (s *Service) GetHandlers() *handlers.Handlers {
	return s.handlers
}

// broadcastLoop continuously polls for new reports and pushes them to
// websocket listeners.
func (s *Service) broadcastLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.BroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if err := s.processNewReports(); err != nil {
				log.Errorf("Error processing new reports: %v", err)
			}
		}
	}
}

// processNewReports fetches and broadcasts reports appended since the
// last tick.
func (s *Service) processNewReports() error {
	ctx := context.Background()

	s.mu.RLock()
	lastSeq := s.lastProcessedSeq
	s.mu.RUnlock()

	reports, err := s.db.GetReportsSince(ctx, lastSeq)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		return nil
	}

	s.hub.BroadcastReports(reports)

	s.mu.Lock()
	s.lastProcessedSeq = reports[len(reports)-1].Seq
	s.mu.Unlock()

	return nil
}
