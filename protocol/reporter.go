// Implements the trust reporter: a read-only, operator-visible summary
// of a peer's device directory after verification activity.

package protocol

import (
	"bytes"
	"context"
	"fmt"
	"text/tabwriter"
)

// A Reporter renders trust outcomes and device directories to the log.
// It keeps no state of its own; every call is a fresh query against
// the messaging client's crypto layer.
type Reporter struct {
	verifier Verifier
	logger   Logger
}

// NewReporter constructs a Reporter over the given verifier.
func NewReporter(verifier Verifier, logger Logger) *Reporter {
	return &Reporter{verifier: verifier, logger: logger}
}

// Result logs the outcome of a finished transaction: the peer, the
// verified device id and its trust flag.
func (r *Reporter) Result(tx *Transaction, dev Device) {
	r.logger.Info("successfully verified device",
		"peer", tx.Peer, "device", dev.ID, "trusted", dev.Verified)
}

// Devices logs the peer's full device directory in a columnar layout.
// Query failures are logged and otherwise ignored.
func (r *Reporter) Devices(ctx context.Context, peer string) {
	devices, err := r.verifier.Devices(ctx, peer)
	if err != nil {
		r.logger.Error("can't list devices", "peer", peer, "error", err)
		return
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 10, 0, 3, ' ', 0)
	for _, dev := range devices {
		name := dev.DisplayName
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%v\n", dev.ID, name, dev.Verified)
	}
	w.Flush()
	r.logger.Info("devices of peer "+peer+"\n"+buf.String())
}
