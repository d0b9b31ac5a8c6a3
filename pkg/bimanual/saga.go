package bimanual

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// StepStatus is the state of one device step in a lifecycle run.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepDone
	StepFailed
	StepSkipped
	// StepCompensated marks a done step that was undone by a rollback.
	StepCompensated
)

func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepDone:
		return "done"
	case StepFailed:
		return "failed"
	case StepSkipped:
		return "skipped"
	case StepCompensated:
		return "compensated"
	}
	return "unknown"
}

// StepResult records the outcome of one step.
type StepResult struct {
	Name   string
	Status StepStatus
	Err    error
}

// Report records a multi-device lifecycle run (connect or disconnect), one
// entry per device in execution order.
type Report struct {
	ID    string
	Op    string
	Steps []StepResult
}

// Step returns the result for the named step.
func (r Report) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// Done returns the names of the steps that completed.
func (r Report) Done() []string {
	var names []string
	for _, s := range r.Steps {
		if s.Status == StepDone {
			names = append(names, s.Name)
		}
	}
	return names
}

// Complete reports whether every step completed.
func (r Report) Complete() bool {
	for _, s := range r.Steps {
		if s.Status != StepDone {
			return false
		}
	}
	return len(r.Steps) > 0
}

func (r Report) clone() Report {
	r.Steps = append([]StepResult(nil), r.Steps...)
	return r
}

// StepError is a device failure during a coordinator operation.
type StepError struct {
	Op   string
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return e.Op + " " + e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error { return e.Err }

type runMode int

const (
	// failFast skips the remaining steps after a failure.
	failFast runMode = iota
	// bestEffort attempts every step regardless of failures.
	bestEffort
)

type step struct {
	name string
	do   func(ctx context.Context) error
	undo func(ctx context.Context) error
	// Consecutive concurrent steps run together when parallelism is on.
	concurrent bool
}

type saga struct {
	op       string
	mode     runMode
	parallel bool
	steps    []step
	log      *slog.Logger
}

// run executes the steps. Steps already done in prior are carried over
// without running again.
func (s *saga) run(ctx context.Context, prior *Report) (Report, error) {
	rep := Report{
		ID:    uuid.NewString(),
		Op:    s.op,
		Steps: make([]StepResult, len(s.steps)),
	}
	for i, st := range s.steps {
		rep.Steps[i] = StepResult{Name: st.name, Status: StepPending}
		if prior != nil {
			if pr, ok := prior.Step(st.name); ok && pr.Status == StepDone {
				rep.Steps[i].Status = StepDone
			}
		}
	}

	log := s.log.With("saga", rep.ID, "op", s.op)
	log.Debug("lifecycle started", "steps", len(s.steps))

	halted := false
	for i := 0; i < len(s.steps); {
		end := i + 1
		if s.parallel && s.steps[i].concurrent {
			for end < len(s.steps) && s.steps[end].concurrent {
				end++
			}
		}

		if halted {
			for k := i; k < end; k++ {
				if rep.Steps[k].Status == StepPending {
					rep.Steps[k].Status = StepSkipped
				}
			}
			i = end
			continue
		}

		if end-i == 1 {
			s.exec(ctx, &rep, i, log)
		} else {
			var g errgroup.Group
			for k := i; k < end; k++ {
				g.Go(func() error {
					s.exec(ctx, &rep, k, log)
					return nil
				})
			}
			_ = g.Wait()
		}

		if s.mode == failFast {
			for k := i; k < end; k++ {
				if rep.Steps[k].Status == StepFailed {
					halted = true
				}
			}
		}
		i = end
	}

	err := rep.err()
	if err != nil {
		log.Warn("lifecycle incomplete", "done", rep.Done(), "err", err)
	} else {
		log.Debug("lifecycle finished")
	}
	return rep, err
}

// exec runs step k unless it is already done. Each call writes only its
// own slot, so concurrent calls are safe.
func (s *saga) exec(ctx context.Context, rep *Report, k int, log *slog.Logger) {
	if rep.Steps[k].Status == StepDone {
		return
	}
	st := s.steps[k]
	if err := st.do(ctx); err != nil {
		rep.Steps[k].Status = StepFailed
		rep.Steps[k].Err = &StepError{Op: s.op, Step: st.name, Err: err}
		log.Debug("step failed", "step", st.name, "err", err)
		return
	}
	rep.Steps[k].Status = StepDone
	log.Debug("step done", "step", st.name)
}

// compensate undoes the done steps of rep in reverse order, marking them
// compensated. Undo failures leave the step done and are returned joined.
func (s *saga) compensate(ctx context.Context, rep *Report) error {
	var errs []error
	for k := len(rep.Steps) - 1; k >= 0; k-- {
		if rep.Steps[k].Status != StepDone {
			continue
		}
		st, ok := s.find(rep.Steps[k].Name)
		if !ok || st.undo == nil {
			continue
		}
		if err := st.undo(ctx); err != nil {
			errs = append(errs, &StepError{Op: "rollback", Step: st.name, Err: err})
			continue
		}
		rep.Steps[k].Status = StepCompensated
	}
	if len(errs) > 0 {
		s.log.Warn("rollback incomplete", "op", s.op, "saga", rep.ID, "err", errors.Join(errs...))
	}
	return errors.Join(errs...)
}

func (s *saga) find(name string) (step, bool) {
	for _, st := range s.steps {
		if st.name == name {
			return st, true
		}
	}
	return step{}, false
}

// err returns the single step failure, or all of them joined.
func (r Report) err() error {
	var errs []error
	for _, s := range r.Steps {
		if s.Status == StepFailed {
			errs = append(errs, s.Err)
		}
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}
