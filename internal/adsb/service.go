package adsb

import (
	"context"
	"sync"
	"time"

	"github.com/skyspot/skyspot/internal/geodesy"
	"github.com/skyspot/skyspot/internal/tracker"
	"github.com/skyspot/skyspot/pkg/logger"
)

// Broadcaster pushes events to connected WebSocket clients.
type Broadcaster interface {
	Broadcast(event string, payload interface{})
}

// AimRecorder appends emitted aim points to the sighting log.
type AimRecorder interface {
	RecordAim(ctx context.Context, aim tracker.AimPoint) error
}

// TargetEvent describes a change of tracked aircraft.
type TargetEvent struct {
	Hex         string    `json:"hex"`
	Callsign    string    `json:"callsign,omitempty"`
	PreviousHex string    `json:"previous_hex,omitempty"`
	DistanceM   float64   `json:"distance_m"`
	Time        time.Time `json:"time"`
}

// TargetState is the API view of the current target.
type TargetState struct {
	Tracking  bool     `json:"tracking"`
	Hex       string   `json:"hex,omitempty"`
	Callsign  string   `json:"callsign,omitempty"`
	DistanceM *float64 `json:"distance_m,omitempty"`
}

// Status summarizes the service for the status endpoint.
type Status struct {
	AircraftCount int         `json:"aircraft_count"`
	Target        TargetState `json:"target"`
	Timestamp     time.Time   `json:"timestamp"`
}

// ServiceConfig carries the observer site and housekeeping settings.
type ServiceConfig struct {
	Observer      geodesy.Location
	SweepInterval time.Duration
}

// Service is the ingestion pipeline: it consumes decoded reports, maintains
// the aircraft store, computes the observer-relative geometry for position
// updates and feeds the target selector. It is the sole writer to the store
// and the selector; a lock makes their state readable from the HTTP surface.
type Service struct {
	cfg      ServiceConfig
	store    *Store
	selector *tracker.Selector
	queue    *tracker.Queue
	reports  <-chan *Report

	broadcaster Broadcaster
	recorder    AimRecorder

	logger *logger.Logger
	clock  func() time.Time

	mu     sync.RWMutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(
	cfg ServiceConfig,
	store *Store,
	selector *tracker.Selector,
	queue *tracker.Queue,
	reports <-chan *Report,
	broadcaster Broadcaster,
	recorder AimRecorder,
	log *logger.Logger,
) *Service {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	return &Service{
		cfg:         cfg,
		store:       store,
		selector:    selector,
		queue:       queue,
		reports:     reports,
		broadcaster: broadcaster,
		recorder:    recorder,
		logger:      log.Named("adsb-service"),
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the ingestion and housekeeping goroutines.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.ingest(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.sweep(ctx)
	}()

	s.logger.Info("ADS-B service started")
}

// Stop halts the goroutines and waits for them to finish.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("ADS-B service stopped")
}

func (s *Service) ingest(ctx context.Context) {
	for {
		select {
		case rep, ok := <-s.reports:
			if !ok {
				s.logger.Warn("Report stream ended")
				return
			}
			s.handle(ctx, rep)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			removed := s.store.Sweep(s.clock())
			s.mu.Unlock()
			if removed > 0 {
				s.logger.Debug("Swept expired aircraft", logger.Int("removed", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) handle(ctx context.Context, rep *Report) {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	positionUpdated := false
	switch rep.Kind {
	case KindIdentity:
		s.store.ApplyAttribute(rep.Hex, Attribute{Field: FieldCallsign, Text: rep.Callsign}, now)
	case KindVelocity:
		s.store.ApplyAttribute(rep.Hex, Attribute{Field: FieldSpeed, Value: rep.SpeedMPH}, now)
		s.store.ApplyAttribute(rep.Hex, Attribute{Field: FieldHeading, Value: rep.HeadingDeg}, now)
	case KindPosition:
		if rep.HasAltitude {
			s.store.ApplyAttribute(rep.Hex, Attribute{Field: FieldAltitude, Value: rep.AltitudeM}, now)
		}
		s.store.ApplyPosition(rep.Hex, *rep.Position, now)
		positionUpdated = true
	case KindPositionEven, KindPositionOdd:
		if rep.HasAltitude {
			s.store.ApplyAttribute(rep.Hex, Attribute{Field: FieldAltitude, Value: rep.AltitudeM}, now)
		}
		parity := ParityEven
		if rep.Kind == KindPositionOdd {
			parity = ParityOdd
		}
		positionUpdated = s.store.ApplyFragment(rep.Hex, parity, rep.Raw, now)
	}

	if !positionUpdated {
		return
	}
	s.maybeAim(ctx, rep.Hex, now)
}

// maybeAim runs the selection rules for an aircraft that just gained a
// resolved position. Called with the write lock held.
func (s *Service) maybeAim(ctx context.Context, hex string, now time.Time) {
	ac, ok := s.store.Get(hex, now)
	if !ok || !ac.Eligible() {
		return
	}

	pos := ac.Position()
	alt := ac.AltitudeM()
	target := geodesy.NewLocation(pos.Lat, pos.Lng, *alt)
	rel := geodesy.Relate(s.cfg.Observer, target)

	previous, _ := s.selector.Target()
	aim, ok := s.selector.Consider(hex, ac.Callsign(), rel, now)
	if !ok {
		return
	}

	s.queue.Put(aim)

	if s.broadcaster != nil {
		if aim.Hex != previous {
			s.broadcaster.Broadcast("target_change", TargetEvent{
				Hex:         aim.Hex,
				Callsign:    aim.Callsign,
				PreviousHex: previous,
				DistanceM:   aim.DistanceM,
				Time:        now,
			})
		}
		s.broadcaster.Broadcast("target_update", aim)
	}

	if s.recorder != nil {
		if err := s.recorder.RecordAim(ctx, aim); err != nil {
			s.logger.Warn("Failed to record sighting",
				logger.String("hex", aim.Hex),
				logger.Error(err))
		}
	}
}

// AircraftList returns snapshots of all live aircraft.
func (s *Service) AircraftList() AircraftResponse {
	now := s.clock()
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := s.store.Snapshots(now)
	return AircraftResponse{Timestamp: now, Count: len(states), Aircraft: states}
}

// AircraftByHex returns a snapshot of one aircraft.
func (s *Service) AircraftByHex(hex string) (AircraftState, bool) {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()

	ac, ok := s.store.Get(hex, now)
	if !ok {
		return AircraftState{}, false
	}
	return ac.Snapshot(now), true
}

// Target returns the current tracking state. Looking up the target's
// callsign counts as a store access, so this takes the write lock.
func (s *Service) Target() TargetState {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()

	hex, ok := s.selector.Target()
	if !ok {
		return TargetState{}
	}
	state := TargetState{Tracking: true, Hex: hex}
	if d, ok := s.selector.LastDistance(); ok {
		state.DistanceM = &d
	}
	if ac, ok := s.store.Get(hex, now); ok {
		state.Callsign = ac.Callsign()
	}
	return state
}

// Status returns the status endpoint payload.
func (s *Service) Status() Status {
	now := s.clock()
	s.mu.RLock()
	count := s.store.Count(now)
	s.mu.RUnlock()

	return Status{
		AircraftCount: count,
		Target:        s.Target(),
		Timestamp:     now,
	}
}
