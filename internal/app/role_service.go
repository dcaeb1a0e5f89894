// Package app contains the orchestration services of the role engine: the
// role manager driving rule execution and guild reconciliation, the
// cache-backed rule mediator, and the background resync scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/epilink/epilink/internal/metrics"
	"github.com/epilink/epilink/pkg/domain/discord"
	"github.com/epilink/epilink/pkg/domain/guild"
	"github.com/epilink/epilink/pkg/domain/identity"
	"github.com/epilink/epilink/pkg/domain/rule"
	"github.com/epilink/epilink/pkg/logger"
)

// ErrRoleComputationFailed marks a role computation that must not result in
// any role mutation: a rule crashed or the identity disclosure failed, so the
// correct role set is unknown.
var ErrRoleComputationFailed = errors.New("role computation failed")

const (
	notificationTimeout  = 10 * time.Second
	detachedResyncBudget = 5 * time.Minute

	// disclosureRequester is the requesting party recorded on automated
	// identity disclosures.
	disclosureRequester = "EpiLink"
)

// RoleService computes which abstract roles a user is entitled to and
// reconciles each monitored guild's actual role assignments to match.
type RoleService struct {
	mapping    *guild.Mapping
	registry   *rule.Registry
	mediator   rule.Mediator
	oracle     identity.PermissionOracle
	disclosure identity.DisclosureService
	discord    discord.Facade
	logger     *logger.Logger
}

// NewRoleService creates the role manager. Every rule name required by a
// monitored guild must resolve in the registry; an unresolvable name is a
// broken deployment and fails construction.
func NewRoleService(
	mapping *guild.Mapping,
	registry *rule.Registry,
	mediator rule.Mediator,
	oracle identity.PermissionOracle,
	disclosure identity.DisclosureService,
	facade discord.Facade,
	log *logger.Logger,
) (*RoleService, error) {
	switch {
	case mapping == nil:
		return nil, errors.New("guild mapping is required")
	case registry == nil:
		return nil, errors.New("rule registry is required")
	case mediator == nil:
		return nil, errors.New("rule mediator is required")
	case oracle == nil:
		return nil, errors.New("permission oracle is required")
	case disclosure == nil:
		return nil, errors.New("disclosure service is required")
	case facade == nil:
		return nil, errors.New("discord facade is required")
	case log == nil:
		return nil, errors.New("logger is required")
	}

	if err := ValidateConfig(mapping, registry); err != nil {
		return nil, err
	}

	return &RoleService{
		mapping:    mapping,
		registry:   registry,
		mediator:   mediator,
		oracle:     oracle,
		disclosure: disclosure,
		discord:    facade,
		logger:     log.With("service", "roles"),
	}, nil
}

// ValidateConfig checks that every rule name referenced by the guild mapping
// resolves in the registry. Run at startup so a broken deployment surfaces
// before any request is served.
func ValidateConfig(mapping *guild.Mapping, registry *rule.Registry) error {
	var missing []string
	for _, name := range mapping.RuleNames() {
		if _, ok := registry.Get(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("guild configuration requires unknown rules: %s", strings.Join(missing, ", "))
	}
	return nil
}

// GetRulesRelevantForGuilds resolves the rules required by the given guilds,
// grouped by rule with the set of guild IDs requesting each. Guilds without
// configuration or without rules contribute nothing. The result is ordered by
// rule name for determinism.
func (s *RoleService) GetRulesRelevantForGuilds(guildIDs ...string) ([]rule.WithRequestingGuilds, error) {
	requesters := make(map[string]map[string]struct{})
	for _, gid := range guildIDs {
		cfg, ok := s.mapping.Guild(gid)
		if !ok {
			continue
		}
		for _, name := range cfg.Rules {
			if _, ok := s.registry.Get(name); !ok {
				// ValidateConfig catches this at startup; hitting it
				// here means the deployment is broken.
				return nil, fmt.Errorf("guild %s requires unknown rule %q", gid, name)
			}
			if requesters[name] == nil {
				requesters[name] = make(map[string]struct{})
			}
			requesters[name][gid] = struct{}{}
		}
	}

	names := make([]string, 0, len(requesters))
	for name := range requesters {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]rule.WithRequestingGuilds, 0, len(names))
	for _, name := range names {
		r, _ := s.registry.Get(name)
		guilds := make([]string, 0, len(requesters[name]))
		for gid := range requesters[name] {
			guilds = append(guilds, gid)
		}
		sort.Strings(guilds)
		result = append(result, rule.WithRequestingGuilds{Rule: r, RequestingGuilds: guilds})
	}
	return result, nil
}

// GetRolesForUser computes the abstract role set the user is entitled to, and
// whether sticky roles apply during reconciliation (false exactly when the
// user must lose everything, i.e. is disallowed).
//
// An unlinked user gets the empty set without consulting the oracle further.
// A disallowed user gets the empty set, sticky stripped, and an optional
// notification. Otherwise the base set (known + identified/not-identified) is
// extended by rule results: cache hits are collected first, remaining rules
// run concurrently through the mediator, with a single identity disclosure
// beforehand when any cache-missed strong rule needs it. Any rule failure
// fails the whole computation: partial role sets are never awarded.
func (s *RoleService) GetRolesForUser(
	ctx context.Context,
	discordID string,
	rulesInfo []rule.WithRequestingGuilds,
	notifyOnFailure bool,
	displayGuildIDs []string,
) (rule.RoleSet, bool, error) {
	linked, err := s.oracle.IsLinked(ctx, discordID)
	if err != nil {
		return nil, false, fmt.Errorf("check linked account: %w", err)
	}
	if !linked {
		return rule.NewRoleSet(), true, nil
	}

	elig, err := s.oracle.CanJoinServers(ctx, discordID)
	if err != nil {
		return nil, false, fmt.Errorf("check eligibility: %w", err)
	}
	if !elig.Allowed {
		s.logger.Info("user may not hold roles",
			"discord_id", discordID,
			"reason", elig.Reason,
		)
		if notifyOnFailure {
			s.notifyIneligible(ctx, discordID, elig.Reason, displayGuildIDs)
		}
		return rule.NewRoleSet(), false, nil
	}

	identified, err := s.oracle.HasVerifiedIdentity(ctx, discordID)
	if err != nil {
		return nil, false, fmt.Errorf("check verified identity: %w", err)
	}

	roles := rule.NewRoleSet(rule.RoleKnown)
	if identified {
		roles.Add(rule.RoleIdentified)
	} else {
		roles.Add(rule.RoleNotIdentified)
	}

	if len(rulesInfo) == 0 {
		return roles, true, nil
	}

	var misses []rule.WithRequestingGuilds
	for _, info := range rulesInfo {
		if cached := s.mediator.TryCache(ctx, info.Rule, discordID); cached.Hit() {
			roles.Add(cached.Roles()...)
		} else {
			misses = append(misses, info)
		}
	}
	if len(misses) == 0 {
		return roles, true, nil
	}

	// One disclosure per computation, before any strong rule runs. Strong
	// rules of users without an identity on file are skipped entirely by
	// the mediator, so no disclosure is attempted for them.
	var verifiedIdentity *string
	if identified {
		if requesting := strongRequesters(misses); len(requesting) > 0 {
			id, err := s.discloseForGuilds(ctx, discordID, requesting)
			if err != nil {
				return nil, false, fmt.Errorf("%w: %v", ErrRoleComputationFailed, err)
			}
			verifiedIdentity = &id
		}
	}

	profile, err := s.discord.GetDisplayProfile(ctx, discordID)
	if err != nil {
		return nil, false, fmt.Errorf("fetch display profile: %w", err)
	}

	sub := rule.Subject{
		DiscordID:     discordID,
		Username:      profile.Username,
		Discriminator: profile.Discriminator,
		Identity:      verifiedIdentity,
	}

	results := make([]rule.Result, len(misses))
	var wg sync.WaitGroup
	for i, info := range misses {
		wg.Add(1)
		go func(i int, r *rule.Rule) {
			defer wg.Done()
			results[i] = s.mediator.RunRule(ctx, r, sub)
		}(i, info.Rule)
	}
	wg.Wait()

	var failedRules []string
	for i, res := range results {
		if !res.Succeeded() {
			s.logger.Error("rule failed during role computation",
				"rule", misses[i].Rule.Name(),
				"discord_id", discordID,
				"error", res.Err(),
			)
			failedRules = append(failedRules, misses[i].Rule.Name())
			continue
		}
		roles.Add(res.Roles()...)
	}
	if len(failedRules) > 0 {
		return nil, false, fmt.Errorf("%w: rules did not complete: %s",
			ErrRoleComputationFailed, strings.Join(failedRules, ", "))
	}

	return roles, true, nil
}

// discloseForGuilds performs the single automated identity disclosure for a
// computation, with an audit reason naming the guilds whose strong rules
// requested it.
func (s *RoleService) discloseForGuilds(ctx context.Context, discordID string, guildIDs []string) (string, error) {
	reason := fmt.Sprintf("Automated role update for: %s",
		strings.Join(s.guildDisplayNames(ctx, guildIDs), ", "))

	id, err := s.disclosure.DiscloseIdentity(ctx, discordID, true, disclosureRequester, reason)
	if err != nil {
		return "", fmt.Errorf("identity disclosure: %w", err)
	}
	metrics.IdentityDisclosuresTotal.Inc()
	return id, nil
}

// strongRequesters returns the sorted union of guild IDs requesting
// cache-missed strong rules.
func strongRequesters(misses []rule.WithRequestingGuilds) []string {
	seen := make(map[string]struct{})
	for _, info := range misses {
		if !info.Rule.RequiresIdentity() {
			continue
		}
		for _, gid := range info.RequestingGuilds {
			seen[gid] = struct{}{}
		}
	}
	guilds := make([]string, 0, len(seen))
	for gid := range seen {
		guilds = append(guilds, gid)
	}
	sort.Strings(guilds)
	return guilds
}

// guildDisplayNames resolves guild IDs to display names, falling back to the
// raw ID when the facade cannot answer.
func (s *RoleService) guildDisplayNames(ctx context.Context, guildIDs []string) []string {
	names := make([]string, len(guildIDs))
	for i, gid := range guildIDs {
		name, err := s.discord.GetGuildDisplayName(ctx, gid)
		if err != nil || name == "" {
			names[i] = gid
			continue
		}
		names[i] = name
	}
	return names
}

// notifyIneligible tells the user why no roles were granted. Detached and
// best-effort: a failing notification never affects the computation.
func (s *RoleService) notifyIneligible(ctx context.Context, discordID, reason string, guildIDs []string) {
	names := s.guildDisplayNames(ctx, guildIDs)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic recovered in eligibility notification",
					"discord_id", discordID,
					"panic", r,
				)
			}
		}()

		notifyCtx, cancel := context.WithTimeout(context.Background(), notificationTimeout)
		defer cancel()

		message := fmt.Sprintf("You do not currently have access to %s. %s",
			strings.Join(names, ", "), reason)
		if err := s.discord.SendDirectNotification(notifyCtx, discordID, message); err != nil {
			s.logger.Warn("eligibility notification failed",
				"discord_id", discordID,
				"error", err,
			)
		}
	}()
}

// UpdateUserWithRoles reconciles one guild's role assignments against the
// computed abstract role set. toObtain is the mapped platform role IDs of the
// computed set; toRemove is every other configured role ID, minus sticky
// roles when applyStickyRoles is true. A pure function of its inputs and the
// static configuration: calling it twice yields the same diff.
func (s *RoleService) UpdateUserWithRoles(ctx context.Context, discordID, guildID string, roles rule.RoleSet, applyStickyRoles bool) error {
	cfg, ok := s.mapping.Guild(guildID)
	if !ok {
		return nil
	}

	obtain := make(map[string]struct{})
	for abstract := range roles {
		if roleID, mapped := cfg.RoleID(abstract); mapped {
			obtain[roleID] = struct{}{}
		}
	}

	sticky := map[string]struct{}{}
	if applyStickyRoles {
		sticky = s.mapping.StickyRoleIDs(guildID)
	}

	toAdd := make([]string, 0, len(obtain))
	for roleID := range obtain {
		toAdd = append(toAdd, roleID)
	}
	sort.Strings(toAdd)

	var toRemove []string
	for _, roleID := range cfg.AllRoleIDs() {
		if _, keep := obtain[roleID]; keep {
			continue
		}
		if _, isSticky := sticky[roleID]; isSticky {
			continue
		}
		toRemove = append(toRemove, roleID)
	}

	if err := s.discord.ManageRoles(ctx, discordID, guildID, toAdd, toRemove); err != nil {
		metrics.RoleSyncsTotal.WithLabelValues(guildID, metrics.StatusFailure).Inc()
		return fmt.Errorf("manage roles on guild %s: %w", guildID, err)
	}

	metrics.RoleSyncsTotal.WithLabelValues(guildID, metrics.StatusSuccess).Inc()
	s.logger.Debug("roles reconciled",
		"discord_id", discordID,
		"guild_id", guildID,
		"added", len(toAdd),
		"removed", len(toRemove),
	)
	return nil
}

// UpdateRolesOnGuilds recomputes the user's role set once and applies it to
// every candidate guild that is monitored and where the user is a member.
// Guilds are reconciled independently: a failure on one is logged and does
// not prevent application on the others. A failed computation applies
// nothing anywhere.
func (s *RoleService) UpdateRolesOnGuilds(ctx context.Context, discordID string, guildIDs []string, notifyOnFailure bool) error {
	var monitored []string
	seen := make(map[string]struct{})
	for _, gid := range guildIDs {
		if _, dup := seen[gid]; dup || !s.mapping.IsMonitored(gid) {
			continue
		}
		seen[gid] = struct{}{}
		monitored = append(monitored, gid)
	}
	if len(monitored) == 0 {
		return nil
	}

	// Membership checks fan out per guild. A failing check excludes that
	// guild from this pass, leaving its previous state untouched.
	member := make([]bool, len(monitored))
	var wg sync.WaitGroup
	for i, gid := range monitored {
		wg.Add(1)
		go func(i int, gid string) {
			defer wg.Done()
			ok, err := s.discord.IsMember(ctx, discordID, gid)
			if err != nil {
				s.logger.Error("membership check failed",
					"discord_id", discordID,
					"guild_id", gid,
					"error", err,
				)
				return
			}
			member[i] = ok
		}(i, gid)
	}
	wg.Wait()

	var present []string
	for i, gid := range monitored {
		if member[i] {
			present = append(present, gid)
		}
	}
	if len(present) == 0 {
		return nil
	}

	rulesInfo, err := s.GetRulesRelevantForGuilds(present...)
	if err != nil {
		return err
	}

	roles, applySticky, err := s.GetRolesForUser(ctx, discordID, rulesInfo, notifyOnFailure, present)
	if err != nil {
		return err
	}

	var applyWG sync.WaitGroup
	for _, gid := range present {
		applyWG.Add(1)
		go func(gid string) {
			defer applyWG.Done()
			if err := s.UpdateUserWithRoles(ctx, discordID, gid, roles, applySticky); err != nil {
				s.logger.Error("role application failed",
					"discord_id", discordID,
					"guild_id", gid,
					"error", err,
				)
			}
		}(gid)
	}
	applyWG.Wait()

	return nil
}

// HandleNewUser reacts to a user joining a guild: unmonitored guilds are
// ignored, unlinked users get the guild's greeting (when enabled) and no role
// action, linked users get a role update scoped to that guild.
func (s *RoleService) HandleNewUser(ctx context.Context, guildID, guildName, discordID string) error {
	cfg, ok := s.mapping.Guild(guildID)
	if !ok {
		return nil
	}

	linked, err := s.oracle.IsLinked(ctx, discordID)
	if err != nil {
		return fmt.Errorf("check linked account: %w", err)
	}
	if !linked {
		if cfg.EnableWelcome {
			if err := s.discord.SendGreeting(ctx, guildID, discordID); err != nil {
				s.logger.Warn("greeting failed",
					"discord_id", discordID,
					"guild_id", guildID,
					"guild_name", guildName,
					"error", err,
				)
			}
		}
		return nil
	}

	return s.UpdateRolesOnGuilds(ctx, discordID, []string{guildID}, true)
}

// InvalidateAllRoles drops every cached rule result for the user, then runs a
// full role update across all monitored guilds. Used whenever the user's
// underlying facts may have changed (ban issued or revoked, identity linked
// or unlinked, manual resync).
func (s *RoleService) InvalidateAllRoles(ctx context.Context, discordID string, notifyOnFailure bool) error {
	if err := s.mediator.InvalidateCache(ctx, discordID); err != nil {
		// Stale cached results only delay convergence by one TTL; the
		// resync itself matters more than the invalidation.
		s.logger.Warn("rule cache invalidation failed",
			"discord_id", discordID,
			"error", err,
		)
	}
	return s.UpdateRolesOnGuilds(ctx, discordID, s.mapping.GuildIDs(), notifyOnFailure)
}

// ResyncTask is a handle on a detached resynchronization.
type ResyncTask struct {
	done chan struct{}

	mu  sync.Mutex
	err error
}

// Done is closed when the resync has finished.
func (t *ResyncTask) Done() <-chan struct{} { return t.done }

// Err returns the resync outcome. Valid after Done is closed.
func (t *ResyncTask) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Wait blocks until the resync finishes or the context is cancelled.
func (t *ResyncTask) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InvalidateAllRolesLater schedules InvalidateAllRoles as a detached unit of
// work and returns immediately. The task carries its own deadline and error
// boundary: a panic or failure inside it is recorded on the handle and
// logged, never propagated to the caller.
func (s *RoleService) InvalidateAllRolesLater(discordID string, notifyOnFailure bool) *ResyncTask {
	task := &ResyncTask{done: make(chan struct{})}

	go func() {
		defer close(task.done)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic recovered in detached resync",
					"discord_id", discordID,
					"panic", r,
				)
				task.mu.Lock()
				task.err = fmt.Errorf("detached resync panicked: %v", r)
				task.mu.Unlock()
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), detachedResyncBudget)
		defer cancel()

		err := s.InvalidateAllRoles(ctx, discordID, notifyOnFailure)
		if err != nil {
			s.logger.Error("detached resync failed",
				"discord_id", discordID,
				"error", err,
			)
		}
		task.mu.Lock()
		task.err = err
		task.mu.Unlock()
	}()

	return task
}
