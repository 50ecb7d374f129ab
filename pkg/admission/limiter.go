package admission

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/guildops/ballast/pkg/log"
	"github.com/guildops/ballast/pkg/metrics"
)

// Denial reasons reported in Decision.Reason and on the denial metric
const (
	ReasonRateMinute = "rate-minute"
	ReasonRateHour   = "rate-hour"
	ReasonCooldown   = "cooldown"
	ReasonButtonRate = "button-rate"
	ReasonBurst      = "burst"
)

// Limits holds the configured admission thresholds
type Limits struct {
	CommandsPerMinute int
	CommandsPerHour   int
	ButtonsPerMinute  int
	BurstWindow       time.Duration
	BurstLimit        int
	Cooldowns         map[string]time.Duration
}

// Decision is the outcome of an admission check. A denial is a normal,
// expected outcome, not an error.
type Decision struct {
	Allowed    bool
	Reason     string
	Message    string
	RetryAfter time.Duration
}

// Stats reports an actor's current window counts and active cooldowns
type Stats struct {
	CommandsLastMinute int
	CommandsLastHour   int
	ButtonsLastMinute  int
	ActiveCooldowns    map[string]time.Duration
	RateLimited        bool
}

// GlobalStats aggregates limiter state across all actors
type GlobalStats struct {
	ActiveActorsLastHour  int
	RateLimitedActors     int
	CommandsLastHourTotal int
	ActiveCooldowns       int
}

type actorState struct {
	commands  []time.Time
	buttons   []time.Time
	cooldowns map[string]time.Time
}

// Limiter enforces per-actor rate limits and per-action cooldowns. All
// state is in memory, keyed by actor, and resets on process restart; the
// limiter never touches the resource store.
type Limiter struct {
	mu     sync.Mutex
	limits Limits
	actors map[string]*actorState
	logger zerolog.Logger

	// now is injectable for tests
	now func() time.Time
}

// NewLimiter creates a limiter with the given thresholds
func NewLimiter(limits Limits) *Limiter {
	return &Limiter{
		limits: limits,
		actors: make(map[string]*actorState),
		logger: log.WithComponent("admission"),
		now:    time.Now,
	}
}

func (l *Limiter) state(actorID string) *actorState {
	st, ok := l.actors[actorID]
	if !ok {
		st = &actorState{cooldowns: make(map[string]time.Time)}
		l.actors[actorID] = st
	}
	return st
}

// prune drops timestamps older than window, returning the kept slice
func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

func countSince(ts []time.Time, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	n := 0
	for i := len(ts) - 1; i >= 0; i-- {
		if ts[i].After(cutoff) {
			n++
		} else {
			break
		}
	}
	return n
}

// Check decides whether an actor may perform an action. The action
// timestamp is recorded only on the allowed path, so denied attempts do
// not consume budget.
func (l *Limiter) Check(actorID, action string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st := l.state(actorID)
	st.commands = prune(st.commands, now, time.Hour)

	// Rolling minute budget
	recent := countSince(st.commands, now, time.Minute)
	if recent >= l.limits.CommandsPerMinute {
		oldest := st.commands[len(st.commands)-recent]
		return l.deny(actorID, action, ReasonRateMinute,
			fmt.Sprintf("rate limit: max %d actions per minute", l.limits.CommandsPerMinute),
			oldest.Add(time.Minute).Sub(now))
	}

	// Rolling hour budget
	if len(st.commands) >= l.limits.CommandsPerHour {
		return l.deny(actorID, action, ReasonRateHour,
			fmt.Sprintf("rate limit: max %d actions per hour", l.limits.CommandsPerHour),
			st.commands[0].Add(time.Hour).Sub(now))
	}

	// Per-action cooldown
	if cooldown, ok := l.limits.Cooldowns[action]; ok {
		if last, used := st.cooldowns[action]; used {
			if left := cooldown - now.Sub(last); left > 0 {
				return l.deny(actorID, action, ReasonCooldown,
					fmt.Sprintf("cooldown: %s available again in %ds", action, int(left.Seconds())+1),
					left)
			}
		}
	}

	st.commands = append(st.commands, now)
	if _, ok := l.limits.Cooldowns[action]; ok {
		st.cooldowns[action] = now
	}
	metrics.AdmissionAllowed.Inc()
	return Decision{Allowed: true}
}

// RecordButtonTrigger checks interactive-control triggering, which has its
// own per-minute budget plus a short burst window that catches rapid
// repeated activation independent of the general budget.
func (l *Limiter) RecordButtonTrigger(actorID string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st := l.state(actorID)
	st.buttons = prune(st.buttons, now, time.Minute)

	if len(st.buttons) >= l.limits.ButtonsPerMinute {
		return l.deny(actorID, "button", ReasonButtonRate,
			fmt.Sprintf("button rate limit: max %d triggers per minute", l.limits.ButtonsPerMinute),
			st.buttons[0].Add(time.Minute).Sub(now))
	}

	if countSince(st.buttons, now, l.limits.BurstWindow) >= l.limits.BurstLimit {
		return l.deny(actorID, "button", ReasonBurst, "trigger burst detected, slow down", l.limits.BurstWindow)
	}

	st.buttons = append(st.buttons, now)
	metrics.AdmissionAllowed.Inc()
	return Decision{Allowed: true}
}

func (l *Limiter) deny(actorID, action, reason, msg string, retryAfter time.Duration) Decision {
	if retryAfter < 0 {
		retryAfter = 0
	}
	metrics.AdmissionDenials.WithLabelValues(reason).Inc()
	l.logger.Warn().
		Str("actor_id", actorID).
		Str("action", action).
		Str("reason", reason).
		Dur("retry_after", retryAfter).
		Msg("action denied")
	return Decision{Reason: reason, Message: msg, RetryAfter: retryAfter}
}

// Stats returns the actor's current window counts and active cooldowns
func (l *Limiter) Stats(actorID string) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st, ok := l.actors[actorID]
	if !ok {
		return Stats{ActiveCooldowns: map[string]time.Duration{}}
	}

	st.commands = prune(st.commands, now, time.Hour)
	st.buttons = prune(st.buttons, now, time.Minute)

	active := make(map[string]time.Duration)
	for action, last := range st.cooldowns {
		if cooldown, declared := l.limits.Cooldowns[action]; declared {
			if left := cooldown - now.Sub(last); left > 0 {
				active[action] = left
			}
		}
	}

	minute := countSince(st.commands, now, time.Minute)
	return Stats{
		CommandsLastMinute: minute,
		CommandsLastHour:   len(st.commands),
		ButtonsLastMinute:  len(st.buttons),
		ActiveCooldowns:    active,
		RateLimited:        minute >= l.limits.CommandsPerMinute,
	}
}

// Reset clears all counters and cooldowns for an actor. Privileged
// operation; the caller is responsible for authorization.
func (l *Limiter) Reset(actorID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.actors, actorID)
	l.logger.Info().Str("actor_id", actorID).Msg("admission counters reset")
}

// GlobalStats aggregates current limiter state for observability
func (l *Limiter) GlobalStats() GlobalStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var gs GlobalStats
	for _, st := range l.actors {
		st.commands = prune(st.commands, now, time.Hour)
		if len(st.commands) > 0 {
			gs.ActiveActorsLastHour++
			gs.CommandsLastHourTotal += len(st.commands)
		}
		if countSince(st.commands, now, time.Minute) >= l.limits.CommandsPerMinute {
			gs.RateLimitedActors++
		}
		for action, last := range st.cooldowns {
			if cooldown, declared := l.limits.Cooldowns[action]; declared {
				if cooldown-now.Sub(last) > 0 {
					gs.ActiveCooldowns++
				}
			}
		}
	}
	return gs
}
