// Package skillfolio computes the derived profile artifact for a user and
// provides the queue handler that runs the computation as a background job.
package skillfolio

import (
	"encoding/json"
	"strconv"

	"github.com/gigboard/dispatch/errors"
)

// JobType is the queue job type handled by this package. Per-type lifecycle
// events derive from it (job.skillfolio.started and so on).
const JobType = "skillfolio"

// UserID is a numeric user identifier that tolerates JSON string encoding.
// Callers historically submit either 42 or "42"; both normalize to 42.
type UserID int64

// UnmarshalJSON accepts a JSON number or a numeric string.
func (u *UserID) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*u = UserID(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Newf("user id must be a number or numeric string, got %s", string(data))
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "user id string is not numeric: %q", s)
	}
	*u = UserID(n)
	return nil
}

// MarshalJSON renders the id as a JSON number.
func (u UserID) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(u), 10)), nil
}

// Payload is the job payload for skillfolio generation.
type Payload struct {
	UserID   UserID                 `json:"userId"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// LogicalID extracts the dispatcher-injected logical id from the metadata
// bag, returning 0 when absent or unreadable.
func (p Payload) LogicalID() int64 {
	raw, ok := p.Metadata["logicalId"]
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return n
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
