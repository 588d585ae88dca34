package jobs

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"genqueue/internal/domain"
)

// CapacityReason distinguishes the two admission rules.
type CapacityReason string

const (
	ReasonCeiling   CapacityReason = "ceiling"
	ReasonExclusive CapacityReason = "exclusive"
)

// CapacityError rejects a submission that would exceed a user's active-job limits.
type CapacityError struct {
	Reason    CapacityReason
	Kind      domain.JobKind
	Total     int
	Max       int
	Conflicts []domain.Job
}

func (e *CapacityError) Error() string {
	if e.Reason == ReasonExclusive {
		label := KindLabel(e.Kind)
		article := "a"
		if strings.ContainsAny(label[:1], "AEIOU") {
			article = "an"
		}
		return fmt.Sprintf("You already have %s %s in progress. Please wait for it to finish.", article, label)
	}
	return fmt.Sprintf("Too many active generations (%d of %d). Please wait for one to finish.", e.Total, e.Max)
}

// KindLabel renders a kind for user-facing messages, e.g. "Lip Sync".
func KindLabel(kind domain.JobKind) string {
	label := strings.ReplaceAll(string(kind), "_", " ")
	return cases.Title(language.English).String(label)
}

// ActiveView summarizes a user's active jobs for the gatekeeper endpoint.
type ActiveView struct {
	HasActiveJob    bool
	ActiveJobs      []domain.Job
	TotalActiveJobs int
	MaxAllowed      int
	CanSubmit       bool
}

// Gatekeeper enforces the per-user ceiling and per-kind exclusivity. It holds
// no state; callers pass a fresh read of the user's active jobs.
type Gatekeeper struct {
	max int
}

func NewGatekeeper(max int) *Gatekeeper {
	if max <= 0 {
		max = domain.MaxActiveJobsPerUser
	}
	return &Gatekeeper{max: max}
}

func (g *Gatekeeper) Max() int { return g.max }

// Evaluate returns a *CapacityError if a new job of kind may not be admitted.
func (g *Gatekeeper) Evaluate(active []domain.Job, kind domain.JobKind) error {
	live := activeOnly(active)
	if len(live) >= g.max {
		return &CapacityError{Reason: ReasonCeiling, Kind: kind, Total: len(live), Max: g.max}
	}
	var conflicts []domain.Job
	for _, job := range live {
		if job.Kind == kind {
			conflicts = append(conflicts, job)
		}
	}
	if len(conflicts) > 0 {
		return &CapacityError{Reason: ReasonExclusive, Kind: kind, Total: len(live), Max: g.max, Conflicts: conflicts}
	}
	return nil
}

// View reports active jobs, optionally restricted to kind, and whether a job
// of that kind could be admitted now.
func (g *Gatekeeper) View(active []domain.Job, kind domain.JobKind) ActiveView {
	live := activeOnly(active)
	view := ActiveView{
		TotalActiveJobs: len(live),
		MaxAllowed:      g.max,
		ActiveJobs:      live,
	}
	if kind != "" {
		view.ActiveJobs = nil
		for _, job := range live {
			if job.Kind == kind {
				view.ActiveJobs = append(view.ActiveJobs, job)
			}
		}
		view.CanSubmit = g.Evaluate(live, kind) == nil
	} else {
		view.CanSubmit = len(live) < g.max
	}
	if view.ActiveJobs == nil {
		view.ActiveJobs = []domain.Job{}
	}
	view.HasActiveJob = len(view.ActiveJobs) > 0
	return view
}

func activeOnly(jobs []domain.Job) []domain.Job {
	out := make([]domain.Job, 0, len(jobs))
	for _, job := range jobs {
		if job.Status.Active() {
			out = append(out, job)
		}
	}
	return out
}
