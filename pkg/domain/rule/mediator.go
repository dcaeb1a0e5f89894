package rule

import (
	"context"
	"fmt"
	"time"
)

// Subject is the user a rule is evaluated against. Identity is nil when the
// user's verified identity is not available for this execution.
type Subject struct {
	DiscordID     string
	Username      string
	Discriminator string
	Identity      *string
}

// Mediator sits between the role manager and rule execution. It is the single
// place failures from administrator-authored rule code are contained: RunRule
// never returns an error, only a Result. Separating TryCache from RunRule lets
// the orchestrator batch-probe the cache before deciding which rules actually
// need the execution path.
type Mediator interface {
	// RunRule executes the rule's evaluation function for the subject.
	// A strong rule with a nil identity contributes nothing and its body
	// never runs.
	RunRule(ctx context.Context, r *Rule, sub Subject) Result

	// TryCache attempts to serve a previously computed, still-valid result
	// for the (rule, user) pair.
	TryCache(ctx context.Context, r *Rule, discordID string) CacheResult

	// InvalidateCache drops all cached rule results for a user, regardless
	// of rule.
	InvalidateCache(ctx context.Context, discordID string) error
}

type evalOutcome struct {
	roles []string
	err   error
}

// Execute runs the rule body for the subject with failure containment: a
// strong rule without identity returns an empty success, an error return or
// panic becomes a Failure, and when timeout is positive the execution is
// bounded so a stuck rule cannot block the enclosing computation.
func Execute(ctx context.Context, r *Rule, sub Subject, timeout time.Duration) Result {
	if r.RequiresIdentity() && sub.Identity == nil {
		return Succeed(nil)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// The body runs in its own goroutine so that a rule ignoring its
	// context cannot hang the caller past the deadline.
	ch := make(chan evalOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- evalOutcome{err: fmt.Errorf("rule %q panicked: %v", r.name, p)}
			}
		}()
		var out evalOutcome
		switch r.kind {
		case KindWeak:
			out.roles, out.err = r.weakEval(ctx, sub.DiscordID, sub.Username, sub.Discriminator)
		case KindStrong:
			out.roles, out.err = r.strongEval(ctx, sub.DiscordID, sub.Username, sub.Discriminator, *sub.Identity)
		default:
			out.err = fmt.Errorf("unknown rule kind %q", r.kind)
		}
		ch <- out
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			return Fail(fmt.Errorf("rule %q: %w", r.name, out.err))
		}
		return Succeed(out.roles)
	case <-ctx.Done():
		return Fail(fmt.Errorf("rule %q: %w", r.name, ctx.Err()))
	}
}

// NoopMediator always executes and never caches. Useful for deployments
// without a cache backend and as the baseline mediator in tests.
type NoopMediator struct {
	// Timeout bounds each rule execution. Zero means no bound beyond the
	// caller's context.
	Timeout time.Duration
}

func (m NoopMediator) RunRule(ctx context.Context, r *Rule, sub Subject) Result {
	return Execute(ctx, r, sub, m.Timeout)
}

func (m NoopMediator) TryCache(ctx context.Context, r *Rule, discordID string) CacheResult {
	return CacheMiss()
}

func (m NoopMediator) InvalidateCache(ctx context.Context, discordID string) error {
	return nil
}
