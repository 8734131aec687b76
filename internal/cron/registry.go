package cron

import (
	"context"
	"fmt"
)

// Job is one unit of scheduled work. A crashed cycle may leave work half done,
// so Run must tolerate repeating it.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry keeps jobs in the order they were added.
type Registry struct {
	order  []Job
	byName map[string]Job
}

// NewRegistry skips nil jobs and rejects duplicate names.
func NewRegistry(jobs ...Job) (*Registry, error) {
	r := &Registry{byName: make(map[string]Job, len(jobs))}
	for _, job := range jobs {
		if err := r.Register(job); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	name := job.Name()
	if name == "" {
		return fmt.Errorf("cron job %T has no name", job)
	}
	if _, taken := r.byName[name]; taken {
		return fmt.Errorf("cron job %q registered twice", name)
	}
	r.byName[name] = job
	r.order = append(r.order, job)
	return nil
}

func (r *Registry) Lookup(name string) (Job, bool) {
	job, ok := r.byName[name]
	return job, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.order))
	for _, job := range r.order {
		names = append(names, job.Name())
	}
	return names
}

func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.order...)
}
