package flash

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/errors"
)

func TestWaitUntil_NeverTrueTimesOut(t *testing.T) {
	polls := 0
	var slept time.Duration
	sleep := func(d time.Duration) { slept += d }

	err := WaitUntil(context.Background(),
		func(ctx context.Context) (bool, error) { polls++; return false, nil },
		60*time.Second, 5*time.Second, sleep)

	if err == nil {
		t.Fatal("expected timeout")
	}
	if errors.KindOf(err) != errors.BootloaderTimeout {
		t.Errorf("expected BootloaderTimeout kind, got %v", errors.KindOf(err))
	}
	if polls < 12 {
		t.Errorf("expected at least timeout/interval polls, got %d", polls)
	}
	if slept > 65*time.Second {
		t.Errorf("slept %s, more than timeout+interval", slept)
	}
}

func TestWaitUntil_SucceedsMidway(t *testing.T) {
	polls := 0
	err := WaitUntil(context.Background(),
		func(ctx context.Context) (bool, error) { polls++; return polls == 3, nil },
		60*time.Second, 5*time.Second, func(time.Duration) {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if polls != 3 {
		t.Errorf("expected 3 polls, got %d", polls)
	}
}

func TestWaitUntil_PollErrorAborts(t *testing.T) {
	boom := fmt.Errorf("transport gone")
	err := WaitUntil(context.Background(),
		func(ctx context.Context) (bool, error) { return false, boom },
		60*time.Second, 5*time.Second, func(time.Duration) {})
	if err != boom {
		t.Errorf("poll error not propagated: %v", err)
	}
}

// fakeTransport records the call sequence of a flash run.
type fakeTransport struct {
	calls          []string
	bootloaderFrom int
	polls          int
	pollErr        error
	flashErr       error
}

func (f *fakeTransport) RebootToBootloader(ctx context.Context) error {
	f.calls = append(f.calls, "reboot-bootloader")
	return nil
}

func (f *fakeTransport) InBootloaderMode(ctx context.Context) (bool, error) {
	f.polls++
	f.calls = append(f.calls, "poll")
	if f.pollErr != nil {
		return false, f.pollErr
	}
	return f.polls >= f.bootloaderFrom, nil
}

func (f *fakeTransport) Flash(ctx context.Context, partition, localPath string) error {
	f.calls = append(f.calls, "flash "+partition+" "+localPath)
	return f.flashErr
}

func (f *fakeTransport) RebootNormal(ctx context.Context) error {
	f.calls = append(f.calls, "reboot-normal")
	return nil
}

func TestRun_FullSequence(t *testing.T) {
	tr := &fakeTransport{bootloaderFrom: 2}
	o := NewOrchestrator(tr, 60*time.Second, 5*time.Second)
	o.sleep = func(time.Duration) {}

	if err := o.Run(context.Background(), "/tmp/work/patched-boot.img"); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	want := []string{
		"reboot-bootloader",
		"poll",
		"poll",
		"flash boot /tmp/work/patched-boot.img",
		"reboot-normal",
	}
	if diff := cmp.Diff(want, tr.calls); diff != "" {
		t.Errorf("call sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_TransitionNeverObserved(t *testing.T) {
	tr := &fakeTransport{bootloaderFrom: 1 << 30}
	o := NewOrchestrator(tr, 10*time.Second, 5*time.Second)
	o.sleep = func(time.Duration) {}

	err := o.Run(context.Background(), "/tmp/work/patched-boot.img")
	if errors.KindOf(err) != errors.BootloaderTimeout {
		t.Errorf("expected BootloaderTimeout, got %v", err)
	}
	for _, c := range tr.calls {
		if c == "flash boot /tmp/work/patched-boot.img" {
			t.Error("flash must not run after a timeout")
		}
	}
}

func TestRun_PollErrorClassifiedAsFlash(t *testing.T) {
	tr := &fakeTransport{pollErr: fmt.Errorf("adb: device offline")}
	o := NewOrchestrator(tr, 60*time.Second, 5*time.Second)
	o.sleep = func(time.Duration) {}

	err := o.Run(context.Background(), "/tmp/work/patched-boot.img")
	if errors.KindOf(err) != errors.Flash {
		t.Errorf("expected Flash kind for a failed poll, got %v (%v)", errors.KindOf(err), err)
	}
	for _, c := range tr.calls {
		if c == "flash boot /tmp/work/patched-boot.img" {
			t.Error("flash must not run after a failed poll")
		}
	}
}

func TestRun_FlashFailure(t *testing.T) {
	tr := &fakeTransport{bootloaderFrom: 1, flashErr: fmt.Errorf("remote: denied")}
	o := NewOrchestrator(tr, 60*time.Second, 5*time.Second)
	o.sleep = func(time.Duration) {}

	err := o.Run(context.Background(), "/tmp/work/patched-boot.img")
	if errors.KindOf(err) != errors.Flash {
		t.Errorf("expected Flash kind, got %v", errors.KindOf(err))
	}
	for _, c := range tr.calls {
		if c == "reboot-normal" {
			t.Error("no reboot after a failed flash")
		}
	}
}
