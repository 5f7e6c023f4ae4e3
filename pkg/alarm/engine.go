package alarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/logsift/logsift/pkg/obs"
	"github.com/logsift/logsift/pkg/query"
	"github.com/sirupsen/logrus"
)

// Engine periodically re-executes saved alarm queries, drives the alarm
// state machine, and dispatches notifications on OK→TRIGGERED edges.
type Engine struct {
	alarms     Repository
	executor   *query.Executor
	dispatcher Dispatcher
	log        *logrus.Logger
	interval   time.Duration

	// locks serializes per-alarm state transitions. Evaluation takes the
	// lock with TryLock so a tick that overlaps a still-running
	// evaluation skips the alarm instead of racing it; acknowledgement
	// waits for the in-flight evaluation so neither update is lost.
	locks sync.Map

	// notified tracks notification timestamps per alarm for throttling.
	notifiedMu sync.Mutex
	notified   map[string][]int64

	// now is swappable for tests
	now func() time.Time
}

// New creates an alarm evaluation engine
func New(alarms Repository, executor *query.Executor, dispatcher Dispatcher, log *logrus.Logger, interval time.Duration) *Engine {
	return &Engine{
		alarms:     alarms,
		executor:   executor,
		dispatcher: dispatcher,
		log:        log,
		interval:   interval,
		notified:   make(map[string][]int64),
		now:        time.Now,
	}
}

// EvaluateAll runs one evaluation cycle over every enabled alarm. A parse
// or search failure on one alarm is recorded and that alarm skipped;
// the rest of the cycle proceeds.
func (e *Engine) EvaluateAll(ctx context.Context) {
	alarms, err := e.alarms.AllEnabled()
	if err != nil {
		e.log.WithError(err).Error("failed to load alarms for evaluation")
		return
	}

	for i := range alarms {
		if err := e.evaluate(ctx, &alarms[i]); err != nil {
			e.log.WithError(err).WithField("alarm", alarms[i].Name).
				Error("alarm evaluation failed, skipping this cycle")
		}
	}
}

// lockFor returns the mutex serializing state transitions for one alarm.
func (e *Engine) lockFor(id string) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// evaluate runs the state machine for one alarm and persists the result.
func (e *Engine) evaluate(ctx context.Context, a *Alarm) error {
	mu := e.lockFor(a.ID)
	if !mu.TryLock() {
		e.log.WithField("alarm", a.Name).Warn("previous evaluation still running, skipping tick")
		return nil
	}
	defer mu.Unlock()

	obs.Get().AlarmsEvaluatedTotal.Inc()
	verdict, err := e.measure(ctx, a.Query, a.Condition, a.TimeWindowMinutes)
	if err != nil {
		return err
	}

	// Re-read under the lock: the cycle snapshot may predate an operator
	// acknowledgement or another cycle's save.
	cur, err := e.alarms.ByID(a.ID)
	if err != nil {
		return fmt.Errorf("alarm disappeared during evaluation: %w", err)
	}
	a = cur

	now := e.now().UnixMilli()
	a.LastEvaluatedAt = now

	if verdict.Breached {
		// The count tracks every breaching cycle, notified or not.
		a.ConsecutiveTriggerCount++
		a.LastTriggeredAt = now

		// Edge-triggered: only the transition into TRIGGERED notifies.
		// A re-breach while acknowledged resets the acknowledgement and
		// counts as a fresh edge.
		if a.State == StateOK || a.State == StateAcknowledged {
			a.State = StateTriggered
			obs.Get().AlarmsTriggeredTotal.Inc()
			e.notify(ctx, a, verdict.Metric, now)
		}
	} else {
		if a.State != StateOK {
			e.log.WithField("alarm", a.Name).Info("alarm condition cleared")
		}
		a.State = StateOK
		a.ConsecutiveTriggerCount = 0
	}

	if err := e.alarms.Save(*a); err != nil {
		return fmt.Errorf("failed to persist alarm state: %w", err)
	}
	return nil
}

// measure parses the alarm query, executes it over the sliding window
// ending now, and applies the condition.
func (e *Engine) measure(ctx context.Context, queryText string, cond Condition, windowMinutes int) (*Verdict, error) {
	q, err := query.Parse(queryText)
	if err != nil {
		return nil, fmt.Errorf("alarm query invalid: %w", err)
	}

	end := e.now().UnixMilli()
	start := end - int64(windowMinutes)*time.Minute.Milliseconds()
	metric, err := e.executor.Metric(ctx, q, start, end)
	if err != nil {
		return nil, err
	}
	return &Verdict{Metric: metric, Breached: cond.Breached(metric)}, nil
}

// DryRun evaluates an ad hoc query and condition without touching any
// persisted alarm state.
func (e *Engine) DryRun(ctx context.Context, queryText string, cond Condition, windowMinutes int) (*Verdict, error) {
	if err := cond.Validate(); err != nil {
		return nil, err
	}
	if windowMinutes <= 0 {
		return nil, fmt.Errorf("time window must be a positive number of minutes")
	}
	return e.measure(ctx, queryText, cond, windowMinutes)
}

// DryRunAlarm evaluates an existing alarm by id without mutating it.
func (e *Engine) DryRunAlarm(ctx context.Context, id string) (*Verdict, error) {
	a, err := e.alarms.ByID(id)
	if err != nil {
		return nil, err
	}
	return e.measure(ctx, a.Query, a.Condition, a.TimeWindowMinutes)
}

// Acknowledge marks a triggered alarm as acknowledged by an operator.
// Only the TRIGGERED state can be acknowledged. It waits for any
// in-flight evaluation of the alarm so the acknowledgement cannot be
// overwritten by a concurrent save.
func (e *Engine) Acknowledge(id string) error {
	mu := e.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	a, err := e.alarms.ByID(id)
	if err != nil {
		return err
	}
	if a.State != StateTriggered {
		return fmt.Errorf("alarm %q is %s, only TRIGGERED alarms can be acknowledged", a.Name, a.State)
	}
	a.State = StateAcknowledged
	return e.alarms.Save(*a)
}

// notify fans a rendered message out to every configured channel. A
// failure on one channel is logged and never blocks the others, and a
// throttled alarm skips dispatch entirely.
func (e *Engine) notify(ctx context.Context, a *Alarm, metric int, now int64) {
	if len(a.NotificationChannels) == 0 {
		e.log.WithField("alarm", a.Name).Warn("alarm triggered but no notification channels configured")
		return
	}
	if e.throttled(a, now) {
		e.log.WithField("alarm", a.Name).Debug("notification throttled")
		return
	}
	e.recordNotification(a.ID, now)

	msg := &Message{
		AlarmID:     a.ID,
		AlarmName:   a.Name,
		Description: a.Description,
		Query:       a.Query,
		Condition:   fmt.Sprintf("%s %d", a.Condition.Op, a.Condition.Threshold),
		Metric:      metric,
		WindowMin:   a.TimeWindowMinutes,
		TriggeredAt: now,
	}

	for _, ch := range a.NotificationChannels {
		if err := e.dispatcher.Send(ctx, ch, msg); err != nil {
			obs.Get().NotificationsFailedTotal.Inc()
			e.log.WithError(err).WithFields(logrus.Fields{
				"alarm":   a.Name,
				"channel": string(ch.Type),
			}).Error("notification dispatch failed")
			continue
		}
		obs.Get().NotificationsSentTotal.Inc()
	}
}

// throttled checks the per-alarm sliding notification window.
func (e *Engine) throttled(a *Alarm, now int64) bool {
	if a.ThrottleWindowMinutes <= 0 {
		return false
	}
	maxPerWindow := a.MaxNotificationsPerWindow
	if maxPerWindow <= 0 {
		maxPerWindow = 1
	}

	e.notifiedMu.Lock()
	defer e.notifiedMu.Unlock()

	windowStart := now - int64(a.ThrottleWindowMinutes)*time.Minute.Milliseconds()
	history := e.notified[a.ID]
	kept := history[:0]
	for _, ts := range history {
		if ts >= windowStart {
			kept = append(kept, ts)
		}
	}
	e.notified[a.ID] = kept
	return len(kept) >= maxPerWindow
}

func (e *Engine) recordNotification(alarmID string, now int64) {
	e.notifiedMu.Lock()
	defer e.notifiedMu.Unlock()
	e.notified[alarmID] = append(e.notified[alarmID], now)
}

// Run drives scheduled evaluation cycles until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.log.WithField("interval", e.interval).Info("alarm engine started")
	for {
		select {
		case <-ctx.Done():
			e.log.Info("alarm engine stopped")
			return
		case <-ticker.C:
			e.EvaluateAll(ctx)
		}
	}
}
