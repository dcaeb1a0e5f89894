package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/epilink/epilink/internal/infra/redis"
	"github.com/epilink/epilink/internal/metrics"
	"github.com/epilink/epilink/pkg/domain/rule"
	"github.com/epilink/epilink/pkg/logger"
)

// RuleResultCache is the backend holding cached rule results. Satisfied by
// redis.Cache[[]string]; tests substitute an in-memory implementation.
type RuleResultCache interface {
	Get(ctx context.Context, key string) (*[]string, error)
	SetWithTTL(ctx context.Context, key string, value []string, ttl time.Duration) error
	DeletePattern(ctx context.Context, pattern string) error
}

// RuleCachePrefix is the Redis key prefix for cached rule results.
// Full key shape: rule_results:{discord_id}:{rule_name}. The user comes first
// so that invalidating a user is a single pattern delete; the rule name is
// part of the key so a result can never be served for a different rule.
const RuleCachePrefix = "rule_results"

// CachedRuleMediator is the cache-backed rule mediator: cache probes are
// served from Redis with the rule's own TTL, executions go through the same
// contained execution path as the no-op mediator. Only successful results of
// cacheable rules are stored; failures are never cached.
type CachedRuleMediator struct {
	cache   RuleResultCache
	timeout time.Duration
	logger  *logger.Logger
}

// NewCachedRuleMediator creates a mediator over the given result cache.
// timeout bounds each rule execution; zero disables the bound.
func NewCachedRuleMediator(cache RuleResultCache, timeout time.Duration, log *logger.Logger) (*CachedRuleMediator, error) {
	if cache == nil {
		return nil, errors.New("rule result cache is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	return &CachedRuleMediator{
		cache:   cache,
		timeout: timeout,
		logger:  log.With("service", "rule_mediator"),
	}, nil
}

// NewRedisRuleMediator wires the mediator to a Redis client.
func NewRedisRuleMediator(client *redis.Client, timeout time.Duration, log *logger.Logger) (*CachedRuleMediator, error) {
	cache, err := redis.NewCache[[]string](client, RuleCachePrefix)
	if err != nil {
		return nil, fmt.Errorf("create rule result cache: %w", err)
	}
	return NewCachedRuleMediator(cache, timeout, log)
}

func (m *CachedRuleMediator) cacheKey(discordID, ruleName string) string {
	return fmt.Sprintf("%s:%s", discordID, ruleName)
}

// RunRule executes the rule for the subject and caches a successful result
// when the rule opted into caching. Failures are contained into the Result
// and logged with the originating rule name; they never propagate as errors.
func (m *CachedRuleMediator) RunRule(ctx context.Context, r *rule.Rule, sub rule.Subject) rule.Result {
	start := time.Now()
	res := rule.Execute(ctx, r, sub, m.timeout)
	metrics.RuleRunDuration.WithLabelValues(r.Name()).Observe(time.Since(start).Seconds())

	if !res.Succeeded() {
		metrics.RuleRunsTotal.WithLabelValues(r.Name(), metrics.StatusFailure).Inc()
		m.logger.Error("rule execution failed",
			"rule", r.Name(),
			"discord_id", sub.DiscordID,
			"error", res.Err(),
		)
		return res
	}

	metrics.RuleRunsTotal.WithLabelValues(r.Name(), metrics.StatusSuccess).Inc()

	if ttl, cacheable := r.CacheDuration(); cacheable {
		roles := res.Roles()
		if roles == nil {
			roles = []string{}
		}
		key := m.cacheKey(sub.DiscordID, r.Name())
		if err := m.cache.SetWithTTL(ctx, key, roles, ttl); err != nil {
			m.logger.Warn("failed to cache rule result",
				"rule", r.Name(),
				"discord_id", sub.DiscordID,
				"error", err,
			)
		}
	}

	return res
}

// TryCache attempts to serve a still-valid cached result for (rule, user).
// Uncacheable rules never probe. Backend errors degrade to a miss so that a
// cache outage slows computations down instead of failing them.
func (m *CachedRuleMediator) TryCache(ctx context.Context, r *rule.Rule, discordID string) rule.CacheResult {
	if _, cacheable := r.CacheDuration(); !cacheable {
		return rule.CacheMiss()
	}

	cached, err := m.cache.Get(ctx, m.cacheKey(discordID, r.Name()))
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			m.logger.Warn("rule cache probe failed",
				"rule", r.Name(),
				"discord_id", discordID,
				"error", err,
			)
		}
		metrics.RuleCacheMissesTotal.WithLabelValues(r.Name()).Inc()
		return rule.CacheMiss()
	}

	metrics.RuleCacheHitsTotal.WithLabelValues(r.Name()).Inc()
	return rule.CacheHit(*cached)
}

// InvalidateCache drops every cached rule result for the user.
func (m *CachedRuleMediator) InvalidateCache(ctx context.Context, discordID string) error {
	if err := m.cache.DeletePattern(ctx, discordID+":*"); err != nil {
		return fmt.Errorf("invalidate rule cache for %s: %w", discordID, err)
	}
	m.logger.Debug("rule cache invalidated", "discord_id", discordID)
	return nil
}
