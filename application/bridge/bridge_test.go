package bridge

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/sasbridge/sasbridge-go/application"
)

func newTestBridge(t *testing.T) *Bridge {
	t.Helper()
	b, err := NewBridge(application.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	go b.Serve()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		b.Shutdown(ctx)
	})
	return b
}

func TestSubmitOverHTTP(t *testing.T) {
	b := newTestBridge(t)
	codes, cancel := b.Subscribe()
	defer cancel()

	res, err := http.Get("http://" + b.Addr() + "/verify/483920")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatal("Expect status 200, got", res.StatusCode)
	}

	select {
	case code := <-codes:
		if code != "483920" {
			t.Error("Expect code 483920, got", code)
		}
	case <-time.After(time.Second):
		t.Fatal("Expect the submitted code to reach the subscriber")
	}
}

func TestFanOutReachesAllSubscribers(t *testing.T) {
	b := newTestBridge(t)
	first, cancelFirst := b.Subscribe()
	defer cancelFirst()
	second, cancelSecond := b.Subscribe()
	defer cancelSecond()

	if err := b.Submit("483920"); err != nil {
		t.Fatal(err)
	}
	for i, codes := range []<-chan string{first, second} {
		select {
		case code := <-codes:
			if code != "483920" {
				t.Error("Subscriber", i, ": expect code 483920, got", code)
			}
		case <-time.After(time.Second):
			t.Fatal("Subscriber", i, ": expect the code to be delivered")
		}
	}
}

func TestFullSubscriberDoesNotBlockSubmit(t *testing.T) {
	b := newTestBridge(t)
	_, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < subscriptionBuffer+8; i++ {
		if err := b.Submit("code"); err != nil {
			t.Fatal("Expect Submit to succeed with a full subscriber, got", err)
		}
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	b, err := NewBridge(application.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	go b.Serve()

	codes, cancel := b.Subscribe()
	defer cancel()

	ctx, cancelCtx := context.WithTimeout(context.Background(), time.Second)
	defer cancelCtx()
	if err := b.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	if err := b.Submit("483920"); err == nil {
		t.Error("Expect an error submitting after shutdown")
	}
	if _, ok := <-codes; ok {
		t.Error("Expect subscriptions to be closed on shutdown")
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	b := newTestBridge(t)
	codes, cancel := b.Subscribe()
	cancel()
	cancel()
	if _, ok := <-codes; ok {
		t.Error("Expect a cancelled subscription channel to be closed")
	}
	// the remaining subscriber set must still accept submissions
	if err := b.Submit("483920"); err != nil {
		t.Error("Expect Submit to succeed, got", err)
	}
}

func TestLoopbackOnly(t *testing.T) {
	b := newTestBridge(t)
	host, _, err := net.SplitHostPort(b.Addr())
	if err != nil {
		t.Fatal(err)
	}
	if host != "127.0.0.1" {
		t.Error("Expect the bridge to bind loopback, got", host)
	}
	if b.Port() == 0 {
		t.Error("Expect a concrete ephemeral port")
	}
}
