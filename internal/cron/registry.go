package cron

import (
	"context"
	"fmt"
	"time"
)

// Job is one scheduled task run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Schedule is a job and how often it runs. Every of zero means every cycle.
type Schedule struct {
	Job   Job
	Every time.Duration
}

// Registry keeps schedules in registration order.
type Registry struct {
	schedules []Schedule
	names     map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{names: map[string]struct{}{}}
}

// Register adds job. Nil jobs are ignored so optional jobs can be passed
// unconditionally; a second job with the same name is rejected.
func (r *Registry) Register(job Job, every time.Duration) error {
	if job == nil {
		return nil
	}
	if every < 0 {
		return fmt.Errorf("job %s: negative interval %s", job.Name(), every)
	}
	if _, dup := r.names[job.Name()]; dup {
		return fmt.Errorf("job %s registered twice", job.Name())
	}
	r.names[job.Name()] = struct{}{}
	r.schedules = append(r.schedules, Schedule{Job: job, Every: every})
	return nil
}

// Schedules returns a copy of the registered schedules.
func (r *Registry) Schedules() []Schedule {
	return append([]Schedule(nil), r.schedules...)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.schedules))
	for _, s := range r.schedules {
		names = append(names, s.Job.Name())
	}
	return names
}
