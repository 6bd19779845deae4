package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sasbridge/sasbridge-go/protocol"
	"github.com/sasbridge/sasbridge-go/storage/kv/leveldbkv"
)

func outcome(peer, transactionID, state string, at time.Time) *protocol.Outcome {
	return &protocol.Outcome{
		Peer:          peer,
		TransactionID: transactionID,
		DeviceID:      "DEVICE01",
		State:         state,
		FinishedAt:    at,
	}
}

func TestRecordAndCount(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	now := time.Now()
	if err := j.Record(outcome("@alice:example.org", "t1", "done", now)); err != nil {
		t.Fatal(err)
	}
	if err := j.Record(outcome("@bob:example.org", "t2", "timed-out", now.Add(time.Second))); err != nil {
		t.Fatal(err)
	}

	count, err := j.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Error("Expect 2 outcomes on record, got", count)
	}
}

func TestIterate(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	want := outcome("@alice:example.org", "t1", "done", time.Now())
	if err := j.Record(want); err != nil {
		t.Fatal(err)
	}

	seen := 0
	err = j.Iterate(func(o *protocol.Outcome) error {
		seen++
		if o.Peer != want.Peer || o.TransactionID != want.TransactionID {
			t.Error("Expect identity pair", want.Peer, want.TransactionID,
				"got", o.Peer, o.TransactionID)
		}
		if o.State != "done" || o.DeviceID != "DEVICE01" {
			t.Error("Unexpected outcome fields:", o.State, o.DeviceID)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if seen != 1 {
		t.Error("Expect 1 outcome, got", seen)
	}
}

func TestWrapRecordsThroughInjectedDB(t *testing.T) {
	db, err := leveldbkv.OpenDB(filepath.Join(t.TempDir(), "journal"))
	if err != nil {
		t.Fatal(err)
	}
	j := Wrap(db)
	defer j.Close()

	if err := j.Record(outcome("@alice:example.org", "t1", "done", time.Now())); err != nil {
		t.Fatal(err)
	}
	count, err := j.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Error("Expect 1 outcome through the wrapped store, got", count)
	}

	// the journal namespaces its keys in the shared store
	if _, err := db.Get([]byte("outcome")); err != db.ErrNotFound() {
		t.Error("Expect no bare key outside the journal prefix, got", err)
	}
}

func TestOutcomesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")
	j, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Record(outcome("@alice:example.org", "t1", "cancelled", time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	j, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	count, err := j.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Error("Expect the outcome to survive a reopen, got", count)
	}
}
