package persist

import (
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/gmsas95/carecache/internal/errors"
)

// envelope wraps every persisted payload so its schema can evolve.
type envelope struct {
	Version int             `json:"version"`
	SavedAt time.Time       `json:"saved_at"`
	Payload json.RawMessage `json:"payload"`
}

var (
	ErrCorrupt            = apperrors.ErrStateCorrupt
	ErrUnsupportedVersion = apperrors.ErrStateUnsupported
)

// Encode serializes payload under the given schema version.
func Encode(version int, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return json.Marshal(envelope{
		Version: version,
		SavedAt: time.Now().UTC(),
		Payload: body,
	})
}

// Decode unpacks raw into out. Records written by a newer schema than
// maxVersion, or records that do not parse, are rejected; callers drop them.
// The stored version is returned so older layouts can be migrated.
func Decode(raw []byte, maxVersion int, out any) (int, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return 0, apperrors.New(ErrCorrupt.Code, ErrCorrupt.Message, err)
	}
	if env.Version < 1 || env.Version > maxVersion {
		return env.Version, apperrors.New(ErrUnsupportedVersion.Code,
			fmt.Sprintf("%s: %d", ErrUnsupportedVersion.Message, env.Version))
	}
	if len(env.Payload) == 0 {
		return env.Version, apperrors.New(ErrCorrupt.Code, "persisted state has no payload")
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return env.Version, apperrors.New(ErrCorrupt.Code, ErrCorrupt.Message, err)
	}
	return env.Version, nil
}
