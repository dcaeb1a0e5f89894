package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epilink/epilink/internal/config"
	"github.com/epilink/epilink/pkg/domain/rule"
)

func campusSpec() config.RuleSpec {
	return config.RuleSpec{
		Name:    "campus",
		Type:    "email_domain",
		Cache:   config.Duration(5 * time.Minute),
		Domains: []string{"@example.edu", "Partner.ORG"},
		Roles:   []string{"member"},
	}
}

func TestBuild(t *testing.T) {
	reg, err := Build([]config.RuleSpec{campusSpec()})
	require.NoError(t, err)

	r, ok := reg.Get("campus")
	require.True(t, ok)
	assert.Equal(t, rule.KindStrong, r.Kind())

	ttl, cacheable := r.CacheDuration()
	assert.True(t, cacheable)
	assert.Equal(t, 5*time.Minute, ttl)
}

func TestBuild_ExtraRules(t *testing.T) {
	extra := rule.MustNewWeak("handmade", 0, func(_ context.Context, _, _, _ string) ([]string, error) {
		return nil, nil
	})

	reg, err := Build([]config.RuleSpec{campusSpec()}, extra)
	require.NoError(t, err)
	assert.Equal(t, []string{"campus", "handmade"}, reg.Names())
}

func TestBuild_Errors(t *testing.T) {
	t.Run("unknown type", func(t *testing.T) {
		spec := campusSpec()
		spec.Type = "sql_query"
		_, err := Build([]config.RuleSpec{spec})
		assert.Error(t, err)
	})

	t.Run("duplicate names", func(t *testing.T) {
		_, err := Build([]config.RuleSpec{campusSpec(), campusSpec()})
		assert.Error(t, err)
	})
}

func TestEmailDomainRule(t *testing.T) {
	reg, err := Build([]config.RuleSpec{campusSpec()})
	require.NoError(t, err)
	r, ok := reg.Get("campus")
	require.True(t, ok)

	eval := func(identity string) []string {
		t.Helper()
		res := rule.Execute(context.Background(), r, rule.Subject{
			DiscordID: "123",
			Identity:  &identity,
		}, 0)
		require.True(t, res.Succeeded(), "eval failed: %v", res.Err())
		return res.Roles()
	}

	tests := []struct {
		name     string
		identity string
		want     []string
	}{
		{"exact domain", "alice@example.edu", []string{"member"}},
		{"case insensitive", "alice@EXAMPLE.EDU", []string{"member"}},
		{"subdomain", "alice@cs.example.edu", []string{"member"}},
		{"second configured domain", "bob@partner.org", []string{"member"}},
		{"other domain", "alice@elsewhere.com", nil},
		{"suffix but not subdomain", "alice@notexample.edu", nil},
		{"no at sign", "not-an-email", nil},
		{"trailing at sign", "alice@", nil},
		{"at sign in local part", "we@ird@example.edu", []string{"member"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eval(tt.identity))
		})
	}
}

func TestEmailDomainRule_SkipsWithoutIdentity(t *testing.T) {
	reg, err := Build([]config.RuleSpec{campusSpec()})
	require.NoError(t, err)
	r, _ := reg.Get("campus")

	res := rule.Execute(context.Background(), r, rule.Subject{DiscordID: "123"}, 0)
	require.True(t, res.Succeeded())
	assert.Empty(t, res.Roles())
}
