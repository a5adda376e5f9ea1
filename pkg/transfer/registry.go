package transfer

import (
	"context"
	"sort"
	"sync"
	"time"
)

// RecordStatus is a transfer's lifecycle state in the registry.
type RecordStatus int

const (
	StatusPending RecordStatus = iota
	StatusActive
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s RecordStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// terminal reports whether a record can no longer change state.
func (s RecordStatus) terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Record is one tracked transfer, live or recently finished.
type Record struct {
	ID          int
	Filename    string
	RemotePath  string
	LocalPath   string
	Total       int64
	Transferred int64
	Speed       float64
	ETA         time.Duration
	Status      RecordStatus
	Err         error

	doneAt time.Time
	cancel context.CancelFunc
}

// Finished records stay visible in the transfers panel briefly so the
// user sees the outcome, then fall out of Records.
const recordRetention = 5 * time.Second

// Registry tracks every transfer the UI dispatched. All methods are safe
// for concurrent use; transfer goroutines update records while the UI
// renders snapshots.
type Registry struct {
	mu      sync.Mutex
	records map[int]*Record
	nextID  int
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{records: make(map[int]*Record), now: time.Now}
}

// Add registers a pending transfer and returns its id. cancel is invoked
// by Cancel; it must be safe to call after the transfer finished.
func (r *Registry) Add(filename, remotePath, localPath string, total int64, cancel context.CancelFunc) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.records[id] = &Record{
		ID:         id,
		Filename:   filename,
		RemotePath: remotePath,
		LocalPath:  localPath,
		Total:      total,
		Status:     StatusPending,
		cancel:     cancel,
	}
	return id
}

// Start marks a pending transfer active.
func (r *Registry) Start(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok && rec.Status == StatusPending {
		rec.Status = StatusActive
	}
}

// Update applies a progress event. Events for finished transfers are
// dropped; a cancel or failure that raced the last progress tick must not
// be overwritten.
func (r *Registry) Update(id int, p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Status != StatusActive {
		return
	}
	rec.Transferred = p.Bytes
	if p.Total > 0 {
		rec.Total = p.Total
	}
	rec.Speed = p.Speed
	rec.ETA = p.ETA
}

// Complete marks a transfer finished successfully.
func (r *Registry) Complete(id int) {
	r.finish(id, StatusCompleted, nil)
}

// Fail marks a transfer failed with its error.
func (r *Registry) Fail(id int, err error) {
	r.finish(id, StatusFailed, err)
}

func (r *Registry) finish(id int, status RecordStatus, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Status.terminal() {
		return
	}
	rec.Status = status
	rec.Err = err
	rec.Speed = 0
	rec.ETA = 0
	rec.doneAt = r.now()
}

// Cancel stops a live transfer. Cancelling a finished or unknown transfer
// is a no-op.
func (r *Registry) Cancel(id int) {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok || rec.Status.terminal() {
		r.mu.Unlock()
		return
	}
	rec.Status = StatusCancelled
	rec.Speed = 0
	rec.ETA = 0
	rec.doneAt = r.now()
	cancel := rec.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Records returns a snapshot ordered by id. Terminal records past their
// retention window are evicted on the way out.
func (r *Registry) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]Record, 0, len(r.records))
	for id, rec := range r.records {
		if rec.Status.terminal() && now.Sub(rec.doneAt) > recordRetention {
			delete(r.records, id)
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ActiveCount reports how many transfers are pending or running.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if !rec.Status.terminal() {
			n++
		}
	}
	return n
}
