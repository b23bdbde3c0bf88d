package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
)

// ErrCancelled is returned by a handler that observed a cancel request at a
// checkpoint. The executor then finalizes the job as CANCELLED.
var ErrCancelled = errors.New("job cancelled")

// Runtime is what a running handler may do with its own job.
type Runtime interface {
	// Heartbeat renews the lease. An error wrapping common.ErrLeaseLost means
	// the job is no longer owned and the handler must return.
	Heartbeat(ctx context.Context) error
	// IsCancelled reports whether the handler should stop: a cancel was
	// requested or the lease is gone.
	IsCancelled(ctx context.Context) bool
	AppendLog(ctx context.Context, message string) error
}

// ArtifactOutput is a file produced by a handler. The executor stores the
// bytes before the job is marked DONE.
type ArtifactOutput struct {
	Name        string
	ContentType string
	Body        []byte
}

// Outcome is what a successful handler hands back. Result is required and
// must match the job type.
type Outcome struct {
	Result   models.ResultLinkage
	Artifact *ArtifactOutput
}

// HandlerFunc executes one job. Business problems belong in the result
// outcome; a returned error is an infrastructure failure and goes through
// the retry policy.
type HandlerFunc func(ctx context.Context, job *models.Job, rt Runtime) (*Outcome, error)

// Registry maps job types to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[config.JobType]HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[config.JobType]HandlerFunc)}
}

func (r *Registry) Handle(tipo config.JobType, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[tipo] = fn
}

// Register adds a handler that receives its payload already decoded into P.
func Register[P any](r *Registry, tipo config.JobType, fn func(ctx context.Context, job *models.Job, payload P, rt Runtime) (*Outcome, error)) {
	r.Handle(tipo, func(ctx context.Context, job *models.Job, rt Runtime) (*Outcome, error) {
		var payload P
		if len(job.Payload) > 0 {
			if err := json.Unmarshal(job.Payload, &payload); err != nil {
				return nil, fmt.Errorf("decode %s payload: %w", tipo, err)
			}
		}
		return fn(ctx, job, payload, rt)
	})
}

func (r *Registry) Get(tipo config.JobType) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[tipo]
	return h, ok
}

// Types lists the registered job types in a stable order.
func (r *Registry) Types() []config.JobType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]config.JobType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
