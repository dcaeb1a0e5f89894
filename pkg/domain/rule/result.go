package rule

// Result is the outcome of a single rule execution. A failed execution never
// surfaces as an error return from the mediator: rule code failures are
// contained and carried here so that the orchestrator handles them as an
// explicit branch.
type Result struct {
	roles []string
	err   error
}

// Succeed builds a successful result carrying the produced role names.
func Succeed(roles []string) Result {
	return Result{roles: roles}
}

// Fail builds a failed result carrying the captured error.
func Fail(err error) Result {
	return Result{err: err}
}

// Succeeded reports whether the execution completed without error.
func (r Result) Succeeded() bool { return r.err == nil }

// Roles returns the role names produced by a successful execution.
func (r Result) Roles() []string { return r.roles }

// Err returns the captured error of a failed execution, or nil.
func (r Result) Err() error { return r.err }

// CacheResult is the outcome of a cache probe for a (rule, user) pair.
type CacheResult struct {
	roles []string
	hit   bool
}

// CacheHit builds a probe result serving previously computed role names.
func CacheHit(roles []string) CacheResult {
	return CacheResult{roles: roles, hit: true}
}

// CacheMiss builds a probe result indicating no valid cached entry.
func CacheMiss() CacheResult {
	return CacheResult{}
}

// Hit reports whether a still-valid cached result was found.
func (c CacheResult) Hit() bool { return c.hit }

// Roles returns the cached role names. Only meaningful when Hit is true.
func (c CacheResult) Roles() []string { return c.roles }

// WithRequestingGuilds pairs a rule with the set of guild IDs that require it
// for the current computation. Instances are ephemeral and owned by the
// calling computation.
type WithRequestingGuilds struct {
	Rule             *Rule
	RequestingGuilds []string
}
