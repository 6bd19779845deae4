// Implements the registry of live verification transactions.

package protocol

import "sync"

// A Registry tracks every live verification transaction, keyed by the
// pair of peer identity and protocol-assigned transaction id. It is the
// only shared mutable state in the protocol core; all mutation is
// funneled through LookupOrCreate and Evict, which are safe for
// concurrent use.
type Registry struct {
	mu  sync.Mutex
	txs map[string]*Transaction
}

// NewRegistry constructs an empty transaction registry.
func NewRegistry() *Registry {
	return &Registry{txs: make(map[string]*Transaction)}
}

func registryKey(peer, transactionID string) string {
	return peer + "/" + transactionID
}

// LookupOrCreate returns the live transaction for the given key,
// creating one in StatePendingAccept if none exists. The second return
// value reports whether a transaction was created. Two concurrent calls
// for the same key observe exactly one creation.
func (r *Registry) LookupOrCreate(peer, transactionID string, transport Transport) (*Transaction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := registryKey(peer, transactionID)
	if tx, ok := r.txs[key]; ok {
		return tx, false
	}
	tx := &Transaction{
		Peer:          peer,
		TransactionID: transactionID,
		Transport:     transport,
		state:         StatePendingAccept,
	}
	r.txs[key] = tx
	return tx, true
}

// Lookup returns the live transaction for the given key, or nil.
func (r *Registry) Lookup(peer, transactionID string) *Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txs[registryKey(peer, transactionID)]
}

// Evict removes the transaction for the given key and releases its
// bridge subscription. Evicting an unknown key is a no-op.
func (r *Registry) Evict(peer, transactionID string) {
	r.mu.Lock()
	key := registryKey(peer, transactionID)
	tx := r.txs[key]
	delete(r.txs, key)
	r.mu.Unlock()

	// The subscription is closed outside the registry lock so a
	// concurrent bridge fan-out can never deadlock against Evict.
	if tx != nil {
		tx.closeSubscription()
	}
}

// Len returns the number of live transactions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.txs)
}
