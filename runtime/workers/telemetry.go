package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

type PresenceStats interface {
	Stats() (users int, connections int)
}

type RoomStats interface {
	Len() int
}

// TelemetrySink receives the sampled gauges.
type TelemetrySink interface {
	SetPresence(users, connections, rooms int)
	SetQueue(name string, length, capacity int)
	SetProcess(cpu float64, ram float32)
}

// NamedQueue is a buffered channel whose fill level is sampled.
type NamedQueue struct {
	Name     string
	Length   func() int
	Capacity int
}

// TelemetryWorker samples presence, queue and process metrics at a fixed interval.
type TelemetryWorker struct {
	log            *slog.Logger
	metricInterval time.Duration
	presence       PresenceStats
	rooms          RoomStats
	queues         []NamedQueue
	sink           TelemetrySink
	pid            int32
}

func NewTelemetryWorker(log *slog.Logger,
	metricInterval time.Duration,
	presence PresenceStats,
	rooms RoomStats,
	queues []NamedQueue,
	sink TelemetrySink) *TelemetryWorker {
	return &TelemetryWorker{
		log:            log,
		metricInterval: metricInterval,
		presence:       presence,
		rooms:          rooms,
		queues:         queues,
		sink:           sink,
		pid:            int32(os.Getpid()),
	}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	proc, err := process.NewProcess(w.pid)
	if err != nil {
		w.log.Warn("Process stats unavailable", "pid", w.pid, "error", err)
	}

	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping telemetry")
			return nil
		case <-ticker.C:
			w.sample(proc)
		}
	}
}

func (w *TelemetryWorker) sample(proc *process.Process) {
	users, connections := w.presence.Stats()
	w.sink.SetPresence(users, connections, w.rooms.Len())

	for _, q := range w.queues {
		w.sink.SetQueue(q.Name, q.Length(), q.Capacity)
	}

	if proc == nil {
		return
	}
	cpu, err := proc.CPUPercent()
	if err != nil {
		w.log.Debug("Error while finding process cpu usage", "error", err)
		return
	}
	ram, err := proc.MemoryPercent()
	if err != nil {
		w.log.Debug("Error while finding process ram usage", "error", err)
		return
	}
	w.sink.SetProcess(cpu, ram)
}
