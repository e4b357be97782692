package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"lms-sessions/internal/session/domain"
)

// Garbage collection passes, in execution order.
const (
	PassUsers      = "users"
	PassGuest      = "guest"
	PassAnonymous  = "anonymous"
	PassFirstTouch = "first_touch"
)

// guestLifetimeFactor stretches the timeout for guest sessions.
const guestLifetimeFactor = 5

// firstTouchMaxAge is how long an anonymous session that was never used again may live.
const firstTouchMaxAge = 3 * time.Minute

// Diagnostic is one failure observed during a sweep.
type Diagnostic struct {
	Pass string
	SID  string // empty when the failure is not tied to one session
	Err  error
	// Stack is set when the failure was a recovered panic.
	Stack string
}

func (d Diagnostic) Unwrap() error { return d.Err }

func (d Diagnostic) Error() string {
	if d.SID != "" {
		return fmt.Sprintf("gc %s: sid %s: %v", d.Pass, d.SID, d.Err)
	}
	return fmt.Sprintf("gc %s: %v", d.Pass, d.Err)
}

// GCReport summarizes one sweep.
type GCReport struct {
	Now         int64
	Deleted     map[string]int
	Vetoed      int
	Diagnostics []Diagnostic
}

// Err joins all diagnostics, or returns nil for a clean sweep.
func (r *GCReport) Err() error {
	errs := make([]error, len(r.Diagnostics))
	for i, d := range r.Diagnostics {
		errs[i] = d
	}
	return errors.Join(errs...)
}

// TotalDeleted returns the number of sessions deleted across all passes.
func (r *GCReport) TotalDeleted() int {
	n := 0
	for _, c := range r.Deleted {
		n += c
	}
	return n
}

func (r *GCReport) add(pass, sid string, err error) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{Pass: pass, SID: sid, Err: err})
}

// GC deletes expired sessions. It never fails: problems are logged and the sweep carries on.
func (s *Store) GC(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("session gc panicked", "panic", p, "stack", string(debug.Stack()))
		}
	}()
	report := s.Sweep(ctx)
	err := report.Err()
	if err == nil {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "session gc finished", report.LogAttrs()...)
		return
	}
	s.logger.LogAttrs(ctx, slog.LevelError, "session gc finished with errors", append(report.LogAttrs(), slog.Any("error", err))...)
	for _, d := range report.Diagnostics {
		if d.Stack != "" {
			s.logger.Error("session gc pass panicked", "pass", d.Pass, "error", d.Err, "stack", d.Stack)
		}
	}
}

// Sweep runs the four passes in order and reports what each did:
//
//  1. real users idle past the timeout, unless an enabled auth plugin ignores the timeout
//  2. guest sessions idle past five times the timeout
//  3. anonymous sessions idle past the timeout, without consulting plugins
//  4. anonymous sessions never touched after creation and older than three minutes
//
// A failing pass or session is recorded and the sweep moves on.
func (s *Store) Sweep(ctx context.Context) *GCReport {
	now := s.now().Unix()
	timeout := s.timeoutSeconds()
	report := &GCReport{Now: now, Deleted: make(map[string]int, 4)}

	ctx, span := s.inst.tracer.Start(ctx, "session.gc", trace.WithAttributes(
		attribute.Int64("session.timeout_seconds", timeout),
	))
	defer span.End()

	passes := []struct {
		name string
		run  func(context.Context, *GCReport) int
	}{
		{PassUsers, func(ctx context.Context, r *GCReport) int { return s.expireUsers(ctx, r, now-timeout) }},
		{PassGuest, func(ctx context.Context, r *GCReport) int {
			return s.expireOwner(ctx, r, PassGuest, s.settings.GuestID, now-timeout*guestLifetimeFactor)
		}},
		{PassAnonymous, func(ctx context.Context, r *GCReport) int {
			return s.expireOwner(ctx, r, PassAnonymous, domain.NotLoggedIn, now-timeout)
		}},
		{PassFirstTouch, func(ctx context.Context, r *GCReport) int {
			return s.reapFirstTouch(ctx, r, now-int64(firstTouchMaxAge/time.Second))
		}},
	}
	for _, p := range passes {
		n := s.runPass(ctx, report, p.name, p.run)
		report.Deleted[p.name] = n
		s.inst.deleted.Add(ctx, int64(n), metric.WithAttributes(attribute.String("pass", p.name)))
	}
	s.inst.vetoed.Add(ctx, int64(report.Vetoed))

	span.SetAttributes(
		attribute.Int("session.gc.deleted", report.TotalDeleted()),
		attribute.Int("session.gc.vetoed", report.Vetoed),
	)
	if err := report.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gc finished with errors")
	}
	return report
}

// runPass isolates one pass so a panic inside it is reported instead of aborting the sweep.
func (s *Store) runPass(ctx context.Context, report *GCReport, name string, run func(context.Context, *GCReport) int) (deleted int) {
	defer func() {
		if p := recover(); p != nil {
			report.Diagnostics = append(report.Diagnostics, Diagnostic{
				Pass:  name,
				Err:   fmt.Errorf("panic: %v", p),
				Stack: string(debug.Stack()),
			})
		}
	}()
	return run(ctx, report)
}

// expireUsers deletes idle sessions of real users. Sessions whose user row is missing are left
// alone, as are sessions any timeout vetoer wants to keep.
func (s *Store) expireUsers(ctx context.Context, report *GCReport, before int64) int {
	vetoers := s.plugins.TimeoutVetoers()
	deleted := 0
	for rec, err := range s.sessions.ListModifiedBefore(ctx, before, domain.NotLoggedIn, s.settings.GuestID) {
		if err != nil {
			report.add(PassUsers, "", err)
			return deleted
		}
		user, err := s.users.GetByID(ctx, rec.UserID)
		if err != nil {
			report.add(PassUsers, rec.SID, err)
			continue
		}
		if user == nil {
			continue
		}
		keep := false
		for _, p := range vetoers {
			ignore, err := p.IgnoreTimeout(ctx, user, rec.SID, rec.TimeCreated, rec.TimeModified)
			if err != nil {
				report.add(PassUsers, rec.SID, fmt.Errorf("auth plugin %s: %w", p.Name(), err))
				keep = true
				break
			}
			if ignore {
				s.logger.Debug("session timeout ignored", "plugin", p.Name(), "user_id", user.ID, "sid", rec.SID)
				keep = true
				break
			}
		}
		if keep {
			report.Vetoed++
			continue
		}
		if err := s.sessions.DeleteBySID(ctx, rec.SID); err != nil {
			report.add(PassUsers, rec.SID, err)
			continue
		}
		deleted++
	}
	return deleted
}

// expireOwner deletes sessions of one user id idle since before.
func (s *Store) expireOwner(ctx context.Context, report *GCReport, pass string, userID, before int64) int {
	sessions, err := s.sessions.ListByUserID(ctx, userID)
	if err != nil {
		report.add(pass, "", err)
		return 0
	}
	deleted := 0
	for _, rec := range sessions {
		if rec.TimeModified >= before {
			continue
		}
		if err := s.sessions.DeleteBySID(ctx, rec.SID); err != nil {
			report.add(pass, rec.SID, err)
			continue
		}
		deleted++
	}
	return deleted
}

// reapFirstTouch deletes anonymous sessions created before the cutoff and never modified since.
// Browsers may set several cookies on the first request and then only use one of them.
func (s *Store) reapFirstTouch(ctx context.Context, report *GCReport, before int64) int {
	sessions, err := s.sessions.ListByUserID(ctx, domain.NotLoggedIn)
	if err != nil {
		report.add(PassFirstTouch, "", err)
		return 0
	}
	deleted := 0
	for _, rec := range sessions {
		if rec.TimeModified != rec.TimeCreated || rec.TimeModified >= before {
			continue
		}
		if err := s.sessions.DeleteBySID(ctx, rec.SID); err != nil {
			report.add(PassFirstTouch, rec.SID, err)
			continue
		}
		deleted++
	}
	return deleted
}

// LogAttrs flattens the report into log attributes: deletions per pass, vetoes and error count.
func (r *GCReport) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.Int(PassUsers, r.Deleted[PassUsers]),
		slog.Int(PassGuest, r.Deleted[PassGuest]),
		slog.Int(PassAnonymous, r.Deleted[PassAnonymous]),
		slog.Int(PassFirstTouch, r.Deleted[PassFirstTouch]),
		slog.Int("vetoed", r.Vetoed),
		slog.Int("errors", len(r.Diagnostics)),
	}
}
