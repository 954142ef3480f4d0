package schedule

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jeremyschulman/netcfgbu-go/internal/inventory"
)

func TestRunCompletesAllRecords(t *testing.T) {
	recs := []inventory.Record{
		{"host": "sw1", "os_name": "ios"},
		{"host": "sw2", "os_name": "ios"},
		{"host": "sw3", "os_name": "ios"},
	}
	rt := NewRuntime(2, nil)

	fn := func(ctx context.Context, rt *Runtime, rec inventory.Record) (interface{}, error) {
		if rec.Host() == "sw2" {
			return nil, fmt.Errorf("boom")
		}
		return "ok", nil
	}

	ch := Run(context.Background(), recs, rt, nil, fn, 0)

	seen := map[string]error{}
	for res := range ch {
		seen[res.Rec.Host()] = res.Err
	}

	if len(seen) != 3 {
		t.Fatalf("len(seen) = %d, want 3", len(seen))
	}
	if seen["sw1"] != nil || seen["sw3"] != nil {
		t.Errorf("expected sw1/sw3 to succeed")
	}
	if seen["sw2"] == nil {
		t.Errorf("expected sw2 to fail")
	}
}

func TestRunHonorsGlobalTimeout(t *testing.T) {
	recs := []inventory.Record{{"host": "slow", "os_name": "ios"}}
	rt := NewRuntime(1, nil)

	fn := func(ctx context.Context, rt *Runtime, rec inventory.Record) (interface{}, error) {
		select {
		case <-time.After(time.Second):
			return "ok", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ch := Run(context.Background(), recs, rt, nil, fn, 20*time.Millisecond)

	res := <-ch
	if res.Err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestRuntimeAcquireReleaseBound(t *testing.T) {
	rt := NewRuntime(1, nil)

	ctx := context.Background()
	if err := rt.AcquireLogin(ctx); err != nil {
		t.Fatal(err)
	}

	acquired := make(chan struct{})
	go func() {
		rt.AcquireLogin(context.Background())
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second AcquireLogin should block while first holds the slot")
	case <-time.After(50 * time.Millisecond):
	}

	rt.ReleaseLogin()
	<-acquired
}
