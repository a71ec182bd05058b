package export

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"dubsync/internal/mediaerr"
)

// JobState is the lifecycle of one export.
type JobState string

const (
	JobIdle       JobState = "idle"
	JobCapturing  JobState = "capturing"
	JobFinalizing JobState = "finalizing"
	JobComplete   JobState = "complete"
	JobFailed     JobState = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool {
	return s == JobComplete || s == JobFailed
}

func isValidTransition(from, to JobState) bool {
	switch from {
	case JobIdle:
		return to == JobCapturing || to == JobFailed
	case JobCapturing:
		return to == JobFinalizing || to == JobFailed
	case JobFinalizing:
		return to == JobComplete || to == JobFailed
	default:
		return false
	}
}

// JobSnapshot is a copy of a job's observable state.
type JobSnapshot struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	VideoPath  string    `json:"video_path"`
	AudioPath  string    `json:"audio_path"`
	State      JobState  `json:"state"`
	Chunks     int       `json:"chunks"`
	Bytes      int       `json:"bytes"`
	MIMEType   string    `json:"mime_type,omitempty"`
	Duration   float64   `json:"duration,omitempty"`
	StopReason string    `json:"stop_reason,omitempty"`
	EarlyStop  bool      `json:"early_stop"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Observer receives a snapshot after every job transition. Implementations
// must not block for long; they run on the export goroutine.
type Observer interface {
	JobChanged(JobSnapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(JobSnapshot)

func (f ObserverFunc) JobChanged(s JobSnapshot) { f(s) }

// Job is one export attempt. Jobs are never reused.
type Job struct {
	mu        sync.Mutex
	id        string
	sessionID string
	videoPath string
	audioPath string
	state     JobState
	chunks    [][]byte
	bytes     int
	result    *Result
	err       error
	errorKind string
	createdAt time.Time
	updatedAt time.Time
	cancel    func()
	observer  Observer
	done      chan struct{}
}

func newJob(req Request, observer Observer, cancel func()) *Job {
	now := time.Now().UTC()
	return &Job{
		id:        uuid.NewString(),
		sessionID: req.SessionID,
		videoPath: req.Video.Path,
		audioPath: req.Audio.Path,
		state:     JobIdle,
		createdAt: now,
		updatedAt: now,
		cancel:    cancel,
		observer:  observer,
		done:      make(chan struct{}),
	}
}

// ID returns the job identifier.
func (j *Job) ID() string { return j.id }

// State returns the current state.
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Err returns the failure of a failed job.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Cancel aborts the job. It has no effect once the job is terminal.
func (j *Job) Cancel() {
	if j.cancel != nil {
		j.cancel()
	}
}

// Result returns the output once the job is complete.
func (j *Job) Result() *Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

func (j *Job) transition(to JobState) error {
	j.mu.Lock()
	if !isValidTransition(j.state, to) {
		from := j.state
		j.mu.Unlock()
		return fmt.Errorf("invalid job transition %s -> %s", from, to)
	}
	j.state = to
	j.updatedAt = time.Now().UTC()
	snap := j.snapshotLocked()
	j.mu.Unlock()
	j.notify(snap)
	return nil
}

func (j *Job) appendChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.chunks = append(j.chunks, chunk)
	j.bytes += len(chunk)
}

func (j *Job) takeChunks() [][]byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.chunks
}

func (j *Job) discardChunks() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.chunks = nil
	j.bytes = 0
}

func (j *Job) complete(res *Result) error {
	j.mu.Lock()
	if !isValidTransition(j.state, JobComplete) {
		from := j.state
		j.mu.Unlock()
		return fmt.Errorf("invalid job transition %s -> %s", from, JobComplete)
	}
	j.state = JobComplete
	j.result = res
	j.chunks = nil
	j.updatedAt = time.Now().UTC()
	snap := j.snapshotLocked()
	j.mu.Unlock()
	j.notify(snap)
	close(j.done)
	return nil
}

func (j *Job) fail(err error) {
	j.mu.Lock()
	if j.state.Terminal() {
		j.mu.Unlock()
		return
	}
	j.state = JobFailed
	j.err = err
	j.errorKind = mediaerr.Kind(err)
	j.chunks = nil
	j.bytes = 0
	j.updatedAt = time.Now().UTC()
	snap := j.snapshotLocked()
	j.mu.Unlock()
	j.notify(snap)
	close(j.done)
}

// Snapshot copies the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked()
}

func (j *Job) snapshotLocked() JobSnapshot {
	snap := JobSnapshot{
		ID:        j.id,
		SessionID: j.sessionID,
		VideoPath: j.videoPath,
		AudioPath: j.audioPath,
		State:     j.state,
		Chunks:    len(j.chunks),
		Bytes:     j.bytes,
		ErrorKind: j.errorKind,
		CreatedAt: j.createdAt,
		UpdatedAt: j.updatedAt,
	}
	if j.err != nil {
		snap.Error = j.err.Error()
	}
	if r := j.result; r != nil {
		snap.Chunks = r.Chunks
		snap.Bytes = len(r.Data)
		snap.MIMEType = r.MIMEType
		snap.Duration = r.Duration
		snap.StopReason = r.StopReason
		snap.EarlyStop = r.Early != nil
	}
	return snap
}

func (j *Job) notify(snap JobSnapshot) {
	if j.observer != nil {
		j.observer.JobChanged(snap)
	}
}
