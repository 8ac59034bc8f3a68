package health

import (
	"context"
	"runtime"
	"time"

	"github.com/suhail953/wattflow/internal/ports"
)

const (
	StatusSuccess  = "success"
	StatusDegraded = "degraded"

	defaultQueryTimeout = 2 * time.Second
)

// ClientCounter reports how many publishers are connected to the broker.
type ClientCounter interface {
	ConnectedClients() int
}

type Snapshot struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Server    ServerStatus   `json:"server"`
	Database  DatabaseStatus `json:"database"`
	MQTT      MQTTStatus     `json:"mqtt"`
}

type ServerStatus struct {
	Status string      `json:"status"`
	Uptime float64     `json:"uptime"`
	Memory MemoryUsage `json:"memory"`
}

type MemoryUsage struct {
	Sys        uint64 `json:"sys"`
	HeapTotal  uint64 `json:"heapTotal"`
	HeapUsed   uint64 `json:"heapUsed"`
	Goroutines int    `json:"goroutines"`
}

type DatabaseStatus struct {
	Status           string     `json:"status"`
	Driver           string     `json:"driver"`
	Connected        bool       `json:"connected"`
	TotalRecords     uint64     `json:"totalRecords"`
	LatestRecordTime *time.Time `json:"latestRecordTime"`
	Error            string     `json:"error,omitempty"`
}

type MQTTStatus struct {
	Status           string `json:"status"`
	ConnectedClients int    `json:"connectedClients"`
}

// Reporter builds health snapshots on demand. It only reads from the store.
type Reporter struct {
	store        ports.Store
	clients      ClientCounter
	started      time.Time
	now          func() time.Time
	queryTimeout time.Duration
}

// NewReporter creates a reporter; clients may be nil when no broker runs.
func NewReporter(store ports.Store, clients ClientCounter) *Reporter {
	return &Reporter{
		store:        store,
		clients:      clients,
		started:      time.Now(),
		now:          time.Now,
		queryTimeout: defaultQueryTimeout,
	}
}

// Report never fails: store problems turn the snapshot degraded and are
// described in Database.Error.
func (r *Reporter) Report(ctx context.Context) Snapshot {
	now := r.now()
	snap := Snapshot{
		Status:    StatusSuccess,
		Timestamp: now.UTC(),
		Server: ServerStatus{
			Status: "running",
			Uptime: now.Sub(r.started).Seconds(),
			Memory: memoryUsage(),
		},
		Database: r.database(ctx),
		MQTT:     MQTTStatus{Status: "inactive"},
	}
	if r.clients != nil {
		snap.MQTT = MQTTStatus{Status: "active", ConnectedClients: r.clients.ConnectedClients()}
	}
	if snap.Database.Error != "" {
		snap.Status = StatusDegraded
	}
	return snap
}

func (r *Reporter) database(ctx context.Context) DatabaseStatus {
	db := DatabaseStatus{Status: "disconnected", Driver: r.store.Name()}
	if !r.store.IsConnected() {
		db.Error = "store is not connected"
		return db
	}
	db.Status = "connected"
	db.Connected = true

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	total, err := r.store.Count(ctx)
	if err != nil {
		db.Error = err.Error()
		return db
	}
	db.TotalRecords = total

	latest, err := r.store.Latest(ctx)
	if err != nil {
		db.Error = err.Error()
		return db
	}
	if latest != nil {
		t := latest.ReceivedAt.UTC()
		db.LatestRecordTime = &t
	}
	return db
}

func memoryUsage() MemoryUsage {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return MemoryUsage{
		Sys:        ms.Sys,
		HeapTotal:  ms.HeapSys,
		HeapUsed:   ms.HeapAlloc,
		Goroutines: runtime.NumGoroutine(),
	}
}
