package engine

import (
	"errors"
	"sync"
	"testing"
)

func TestKeyLocksSerialiseSameKey(t *testing.T) {
	locks := newKeyLocks()
	var wg sync.WaitGroup
	counter := 0

	for range 50 {
		wg.Go(func() {
			unlock := locks.lock("cart")
			defer unlock()
			counter++
		})
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
	if n := locks.size(); n != 0 {
		t.Errorf("locks held after release = %d, want 0", n)
	}
}

func TestKeyLocksIndependentKeys(t *testing.T) {
	locks := newKeyLocks()
	unlockA := locks.lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.lock("b")
		unlock()
		close(done)
	}()
	<-done
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{opError("enable", "cart", ErrNotFound), "rejected"},
		{errors.New("disk I/O error"), "error"},
	}
	for _, tt := range tests {
		if got := outcome(tt.err); got != tt.want {
			t.Errorf("outcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	err := opError("disable", "payment_gateway", ErrHasDependents, "cart", "coupon")
	want := `disable "payment_gateway": enabled modules depend on it: cart, coupon`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrHasDependents) {
		t.Error("error does not unwrap to ErrHasDependents")
	}
}
