package rule

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func noopWeak(_ context.Context, _, _, _ string) ([]string, error)      { return nil, nil }
func noopStrong(_ context.Context, _, _, _, _ string) ([]string, error) { return nil, nil }

func TestNewWeak(t *testing.T) {
	r, err := NewWeak("campus", time.Minute, noopWeak)
	if err != nil {
		t.Fatalf("NewWeak() error = %v", err)
	}
	if r.Name() != "campus" {
		t.Errorf("Name() = %q, want %q", r.Name(), "campus")
	}
	if r.Kind() != KindWeak {
		t.Errorf("Kind() = %q, want %q", r.Kind(), KindWeak)
	}
	if r.RequiresIdentity() {
		t.Error("weak rule must not require identity")
	}
	ttl, cacheable := r.CacheDuration()
	if !cacheable || ttl != time.Minute {
		t.Errorf("CacheDuration() = (%v, %v), want (1m, true)", ttl, cacheable)
	}
}

func TestNewWeak_Validation(t *testing.T) {
	if _, err := NewWeak("", time.Minute, noopWeak); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := NewWeak("campus", time.Minute, nil); err == nil {
		t.Error("expected error for nil eval func")
	}
	if _, err := NewWeak("campus", -time.Second, noopWeak); err == nil {
		t.Error("expected error for negative cache duration")
	}
}

func TestNewStrong(t *testing.T) {
	r, err := NewStrong("staff", 0, noopStrong)
	if err != nil {
		t.Fatalf("NewStrong() error = %v", err)
	}
	if !r.RequiresIdentity() {
		t.Error("strong rule must require identity")
	}
	if _, cacheable := r.CacheDuration(); cacheable {
		t.Error("zero cacheFor must disable caching")
	}
}

func TestRegistry(t *testing.T) {
	w := MustNewWeak("campus", 0, noopWeak)
	s := MustNewStrong("staff", 0, noopStrong)

	reg, err := NewRegistry(w, s)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	got, ok := reg.Get("campus")
	if !ok || got != w {
		t.Errorf("Get(campus) = (%v, %v), want the registered rule", got, ok)
	}
	if _, ok := reg.Get("unknown"); ok {
		t.Error("Get(unknown) reported a rule")
	}
	if names := reg.Names(); !reflect.DeepEqual(names, []string{"campus", "staff"}) {
		t.Errorf("Names() = %v, want sorted [campus staff]", names)
	}
	if reg.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reg.Len())
	}
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	a := MustNewWeak("campus", 0, noopWeak)
	b := MustNewWeak("campus", 0, noopWeak)
	if _, err := NewRegistry(a, b); err == nil {
		t.Error("expected error for duplicate rule name")
	}
}

func TestRegistry_RejectsNilRule(t *testing.T) {
	if _, err := NewRegistry(nil); err == nil {
		t.Error("expected error for nil rule")
	}
}

func TestRoleSet(t *testing.T) {
	set := NewRoleSet("known", "member")
	set.Add("member", "vip")

	if set.Len() != 3 {
		t.Errorf("Len() = %d, want 3", set.Len())
	}
	if !set.Contains("vip") || set.Contains("admin") {
		t.Error("Contains() wrong")
	}
	if got := set.Sorted(); !reflect.DeepEqual(got, []string{"known", "member", "vip"}) {
		t.Errorf("Sorted() = %v", got)
	}

	set.Union(NewRoleSet("vip", "staff"))
	if set.Len() != 4 || !set.Contains("staff") {
		t.Errorf("Union() result = %v", set.Sorted())
	}
}

func TestExecute_Weak(t *testing.T) {
	r := MustNewWeak("campus", 0, func(_ context.Context, discordID, username, discriminator string) ([]string, error) {
		if discordID != "123" || username != "alice" || discriminator != "0042" {
			t.Errorf("unexpected subject: %s %s %s", discordID, username, discriminator)
		}
		return []string{"member"}, nil
	})

	res := Execute(context.Background(), r, Subject{DiscordID: "123", Username: "alice", Discriminator: "0042"}, 0)
	if !res.Succeeded() {
		t.Fatalf("Execute() failed: %v", res.Err())
	}
	if !reflect.DeepEqual(res.Roles(), []string{"member"}) {
		t.Errorf("Roles() = %v", res.Roles())
	}
}

func TestExecute_StrongWithoutIdentitySkipsBody(t *testing.T) {
	ran := false
	r := MustNewStrong("staff", 0, func(_ context.Context, _, _, _, _ string) ([]string, error) {
		ran = true
		return []string{"vip"}, nil
	})

	res := Execute(context.Background(), r, Subject{DiscordID: "123"}, 0)
	if !res.Succeeded() {
		t.Fatalf("Execute() failed: %v", res.Err())
	}
	if len(res.Roles()) != 0 {
		t.Errorf("Roles() = %v, want empty", res.Roles())
	}
	if ran {
		t.Error("strong rule body ran without an identity")
	}
}

func TestExecute_StrongWithIdentity(t *testing.T) {
	id := "alice@example.edu"
	r := MustNewStrong("staff", 0, func(_ context.Context, _, _, _, identity string) ([]string, error) {
		if identity != id {
			t.Errorf("identity = %q, want %q", identity, id)
		}
		return []string{"vip"}, nil
	})

	res := Execute(context.Background(), r, Subject{DiscordID: "123", Identity: &id}, 0)
	if !res.Succeeded() {
		t.Fatalf("Execute() failed: %v", res.Err())
	}
	if !reflect.DeepEqual(res.Roles(), []string{"vip"}) {
		t.Errorf("Roles() = %v", res.Roles())
	}
}

func TestExecute_ErrorBecomesFailure(t *testing.T) {
	r := MustNewWeak("campus", 0, func(_ context.Context, _, _, _ string) ([]string, error) {
		return nil, errors.New("directory unreachable")
	})

	res := Execute(context.Background(), r, Subject{DiscordID: "123"}, 0)
	if res.Succeeded() {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Err().Error(), "campus") {
		t.Errorf("error %q does not name the rule", res.Err())
	}
}

func TestExecute_PanicBecomesFailure(t *testing.T) {
	r := MustNewWeak("campus", 0, func(_ context.Context, _, _, _ string) ([]string, error) {
		panic("rule bug")
	})

	res := Execute(context.Background(), r, Subject{DiscordID: "123"}, 0)
	if res.Succeeded() {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Err().Error(), "panicked") {
		t.Errorf("error %q does not mention the panic", res.Err())
	}
}

func TestExecute_TimeoutBecomesFailure(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	// A rule that ignores its context entirely.
	r := MustNewWeak("stuck", 0, func(_ context.Context, _, _, _ string) ([]string, error) {
		<-release
		return nil, nil
	})

	start := time.Now()
	res := Execute(context.Background(), r, Subject{DiscordID: "123"}, 20*time.Millisecond)
	if res.Succeeded() {
		t.Fatal("expected timeout failure")
	}
	if !errors.Is(res.Err(), context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded", res.Err())
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Execute blocked for %v despite the deadline", elapsed)
	}
}

func TestExecute_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := MustNewWeak("stuck", 0, func(ctx context.Context, _, _, _ string) ([]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	res := Execute(ctx, r, Subject{DiscordID: "123"}, time.Second)
	if res.Succeeded() {
		t.Fatal("expected failure on cancelled context")
	}
}

func TestResult(t *testing.T) {
	ok := Succeed([]string{"member"})
	if !ok.Succeeded() || ok.Err() != nil {
		t.Error("Succeed() must report success with nil error")
	}

	fail := Fail(errors.New("boom"))
	if fail.Succeeded() || fail.Err() == nil {
		t.Error("Fail() must report failure with its error")
	}
	if fail.Roles() != nil {
		t.Errorf("failed result carries roles: %v", fail.Roles())
	}
}

func TestCacheResult(t *testing.T) {
	hit := CacheHit([]string{"member"})
	if !hit.Hit() || !reflect.DeepEqual(hit.Roles(), []string{"member"}) {
		t.Error("CacheHit() wrong")
	}

	miss := CacheMiss()
	if miss.Hit() {
		t.Error("CacheMiss() reported a hit")
	}
}

func TestNoopMediator(t *testing.T) {
	m := NoopMediator{}
	r := MustNewWeak("campus", time.Minute, func(_ context.Context, _, _, _ string) ([]string, error) {
		return []string{"member"}, nil
	})

	if cached := m.TryCache(context.Background(), r, "123"); cached.Hit() {
		t.Error("NoopMediator must never report a cache hit")
	}
	res := m.RunRule(context.Background(), r, Subject{DiscordID: "123"})
	if !res.Succeeded() || !reflect.DeepEqual(res.Roles(), []string{"member"}) {
		t.Errorf("RunRule() = (%v, %v)", res.Roles(), res.Err())
	}
	if err := m.InvalidateCache(context.Background(), "123"); err != nil {
		t.Errorf("InvalidateCache() error = %v", err)
	}
}
