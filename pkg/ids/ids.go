// Package ids generates the two id flavors rewire needs: globally
// unique, URL-safe Expectation ids (no unguessability requirement), and
// unguessable AlertTrial capability tokens (>=128 bits of entropy, per
// spec.md §3/§9).
package ids

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/rs/xid"
)

// NewExpectationID returns an opaque, URL-safe, globally unique id.
// Grounded on the teacher's pkg/aiid id.go, which builds portal keys
// with xid.New().String() — xid ids are sortable and not secret, which
// is fine here since an Expectation id is a name, not a capability.
func NewExpectationID() string {
	return xid.New().String()
}

// trialTokenBytes is 16 bytes (128 bits) of entropy, the minimum spec.md
// requires for an AlertTrial id.
const trialTokenBytes = 16

// NewTrialToken returns an unguessable, URL-safe AlertTrial id. xid is
// deliberately not used here: its ids are time-ordered and only
// partially random, unsuitable for a bearer-style capability token that
// gates the /ack/{trial_id} endpoint.
func NewTrialToken() (string, error) {
	buf := make([]byte, trialTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating trial token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
