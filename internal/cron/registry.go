package cron

import (
	"context"
	"fmt"
)

// Job is one unit of maintenance work. Name doubles as the metrics label
// and must be unique within a registry.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry keeps jobs in registration order, which is also run order.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

func NewRegistry(jobs ...Job) (*Registry, error) {
	r := &Registry{names: make(map[string]struct{}, len(jobs))}
	for _, job := range jobs {
		if err := r.Register(job); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends job. Nil jobs are ignored; blank or repeated names are
// rejected.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	name := job.Name()
	if name == "" {
		return fmt.Errorf("cron job %T has no name", job)
	}
	if r.names == nil {
		r.names = make(map[string]struct{})
	}
	if _, dup := r.names[name]; dup {
		return fmt.Errorf("cron job %q registered twice", name)
	}
	r.names[name] = struct{}{}
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns a copy so callers cannot reorder the registry.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}
