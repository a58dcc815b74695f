// Package runtime tracks live connections and room subscriptions and fans messages out to them.
// It holds no chat rules: inbound frames and presence changes are handed to injected handlers.
package runtime

import (
	"chat-presence/contract"
	"chat-presence/runtime/workers"
	"context"
	"log/slog"
	"time"
)

type Settings struct {
	DeliveryTimeout    time.Duration
	LookupTimeout      time.Duration
	PresenceBufferSize int
	MetricInterval     time.Duration
}

// Orchestrator builds the presence components and runs their background workers.
type Orchestrator struct {
	log            *slog.Logger
	supervisor     contract.ISupervisor
	registry       *Registry
	index          *RoomIndex
	coordinator    *Coordinator
	announcer      *Announcer
	broadcaster    *Broadcaster
	metricInterval time.Duration
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	store contract.ParticipantStore, settings Settings) *Orchestrator {
	registry := NewRegistry()
	index := NewRoomIndex()
	coordinator := NewCoordinator(log, index, store, settings.LookupTimeout)
	announcer := NewAnnouncer(log, settings.PresenceBufferSize)
	return &Orchestrator{
		log:            log,
		supervisor:     supervisor,
		registry:       registry,
		index:          index,
		coordinator:    coordinator,
		announcer:      announcer,
		broadcaster:    NewBroadcaster(log, registry, index, coordinator, announcer, settings.DeliveryTimeout),
		metricInterval: settings.MetricInterval,
	}
}

func (o *Orchestrator) Registry() *Registry       { return o.registry }
func (o *Orchestrator) Coordinator() *Coordinator { return o.coordinator }
func (o *Orchestrator) Broadcaster() *Broadcaster { return o.broadcaster }

// Lifecycle returns a connection lifecycle handing inbound frames to handler.
func (o *Orchestrator) Lifecycle(handler contract.InboundHandler) *Lifecycle {
	return NewLifecycle(o.log, o.registry, o.coordinator, o.announcer, handler)
}

// Start registers the presence and telemetry workers and blocks until ctx is canceled.
func (o *Orchestrator) Start(ctx context.Context, listener contract.PresenceListener, sink workers.TelemetrySink) {
	o.supervisor.Add(workers.NewPresenceWorker(o.log, o.announcer.Events(), listener))
	if sink != nil {
		o.supervisor.Add(workers.NewTelemetryWorker(o.log, o.metricInterval, o.registry, o.index,
			[]workers.NamedQueue{{Name: "presence", Length: o.announcer.Len, Capacity: o.announcer.Cap()}},
			sink))
	}
	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
}

// Stop cancels the supervised workers.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
