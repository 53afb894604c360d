package cron

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Job is a unit of background maintenance run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry pairs a job with the minimum gap between two of its runs.
type Entry struct {
	Job   Job
	Every time.Duration
}

// Registry holds the worker's jobs keyed by name.
type Registry struct {
	entries []Entry
	names   map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{names: map[string]struct{}{}}
}

// Add registers job to run at most once per every. A non-positive cadence
// means the job runs on every tick.
func (r *Registry) Add(job Job, every time.Duration) error {
	if job == nil {
		return fmt.Errorf("job is required")
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return fmt.Errorf("job name is required")
	}
	if _, dup := r.names[name]; dup {
		return fmt.Errorf("job %q already registered", name)
	}
	if every < 0 {
		every = 0
	}
	r.names[name] = struct{}{}
	r.entries = append(r.entries, Entry{Job: job, Every: every})
	return nil
}

// Entries returns a copy of the registered entries in insertion order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Due filters entries whose cadence has elapsed since lastRun.
func (r *Registry) Due(now time.Time, lastRun map[string]time.Time) []Entry {
	var due []Entry
	for _, entry := range r.entries {
		last, ran := lastRun[entry.Job.Name()]
		if !ran || entry.Every == 0 || !now.Before(last.Add(entry.Every)) {
			due = append(due, entry)
		}
	}
	return due
}
