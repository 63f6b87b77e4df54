package execution

import (
	"errors"
	"testing"
	"time"
)

func TestInFlightGuard_RejectsSecondAcquire(t *testing.T) {
	g := NewInFlightGuard(time.Minute, 4)
	acct := "0x00000000000000000000000000000000000000A1"

	if err := g.TryAcquire(acct); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	// 地址大小写不同也视为同一账户
	if err := g.TryAcquire("0x00000000000000000000000000000000000000a1"); !errors.Is(err, ErrDuplicateInFlight) {
		t.Fatalf("second acquire err=%v want ErrDuplicateInFlight", err)
	}
	if !g.Busy(acct) {
		t.Fatalf("expected busy")
	}

	g.Release(acct)
	if err := g.TryAcquire(acct); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestInFlightGuard_ExpiresAfterTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	g := NewInFlightGuard(time.Second, 1).WithClock(func() time.Time { return now })
	acct := "0x00000000000000000000000000000000000000b2"

	if err := g.TryAcquire(acct); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	now = now.Add(time.Second)
	if err := g.TryAcquire(acct); err != nil {
		t.Fatalf("acquire after ttl: %v", err)
	}
}

func TestInFlightGuard_DistinctAccounts(t *testing.T) {
	g := NewInFlightGuard(time.Minute, 2)
	if err := g.TryAcquire("0x01"); err != nil {
		t.Fatal(err)
	}
	if err := g.TryAcquire("0x02"); err != nil {
		t.Fatalf("distinct account blocked: %v", err)
	}
}
