// Package rules builds the deployment's rule registry. Rules can be declared
// in the guild configuration file (for the supported declarative shapes) or
// registered programmatically by the embedding application.
package rules

import (
	"context"
	"fmt"
	"strings"

	"github.com/epilink/epilink/internal/config"
	"github.com/epilink/epilink/pkg/domain/rule"
)

// Build constructs the rule registry from declarative specs plus any
// programmatically defined rules.
func Build(specs []config.RuleSpec, extra ...*rule.Rule) (*rule.Registry, error) {
	rules := make([]*rule.Rule, 0, len(specs)+len(extra))
	for _, spec := range specs {
		r, err := fromSpec(spec)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	rules = append(rules, extra...)
	return rule.NewRegistry(rules...)
}

func fromSpec(spec config.RuleSpec) (*rule.Rule, error) {
	switch spec.Type {
	case "email_domain":
		return rule.NewStrong(spec.Name, spec.Cache.Std(), emailDomainEval(spec.Domains, spec.Roles))
	default:
		return nil, fmt.Errorf("rule %q: unknown rule type %q", spec.Name, spec.Type)
	}
}

// emailDomainEval grants the configured roles when the verified identity is
// an email address under one of the configured domains. Subdomains match:
// "cs.example.edu" is under "example.edu".
func emailDomainEval(domains, roles []string) rule.StrongEvalFunc {
	normalized := make([]string, len(domains))
	for i, d := range domains {
		normalized[i] = strings.ToLower(strings.TrimPrefix(d, "@"))
	}

	return func(ctx context.Context, discordID, username, discriminator, identity string) ([]string, error) {
		at := strings.LastIndex(identity, "@")
		if at < 0 || at == len(identity)-1 {
			return nil, nil
		}
		domain := strings.ToLower(identity[at+1:])

		for _, d := range normalized {
			if domain == d || strings.HasSuffix(domain, "."+d) {
				out := make([]string, len(roles))
				copy(out, roles)
				return out, nil
			}
		}
		return nil, nil
	}
}
