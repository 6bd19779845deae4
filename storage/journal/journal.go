// Package journal persists the terminal outcomes of verification
// transactions for operator tooling. Only outcomes are stored;
// in-flight transactions are in-memory by design and never survive a
// restart.
package journal

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sasbridge/sasbridge-go/protocol"
	"github.com/sasbridge/sasbridge-go/storage/kv"
	"github.com/sasbridge/sasbridge-go/storage/kv/leveldbkv"
)

// outcomePrefix namespaces journal entries in the underlying store.
const outcomePrefix = "outcome/"

// A Journal is an append-only record of verification outcomes backed
// by a kv.DB.
type Journal struct {
	db kv.DB
}

var _ protocol.OutcomeRecorder = (*Journal)(nil)

// Open opens (creating if necessary) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := leveldbkv.OpenDB(path)
	if err != nil {
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Wrap constructs a Journal over an already-open kv.DB.
func Wrap(db kv.DB) *Journal {
	return &Journal{db: db}
}

func outcomeKey(o *protocol.Outcome) []byte {
	return []byte(outcomePrefix + o.Peer + "/" + o.TransactionID + "/" +
		strconv.FormatInt(o.FinishedAt.UnixNano(), 10))
}

// Record implements protocol.OutcomeRecorder.
func (j *Journal) Record(o *protocol.Outcome) error {
	value, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return j.db.Put(outcomeKey(o), value)
}

// Count returns the number of recorded outcomes.
func (j *Journal) Count() (int, error) {
	count := 0
	err := j.Iterate(func(*protocol.Outcome) error {
		count++
		return nil
	})
	return count, err
}

// Iterate calls fn for every recorded outcome in key order. Iteration
// stops at the first error fn returns.
func (j *Journal) Iterate(fn func(*protocol.Outcome) error) error {
	prefix := []byte(outcomePrefix)
	limit := []byte(outcomePrefix)
	limit[len(limit)-1]++

	it := j.db.NewIterator(&kv.Range{Start: prefix, Limit: limit})
	defer it.Release()
	for ok := it.First(); ok; ok = it.Next() {
		var o protocol.Outcome
		if err := json.Unmarshal(it.Value(), &o); err != nil {
			return fmt.Errorf("corrupt journal entry %q: %v", it.Key(), err)
		}
		if err := fn(&o); err != nil {
			return err
		}
	}
	return it.Error()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
