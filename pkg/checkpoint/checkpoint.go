// Package checkpoint saves and restores engine state between runs.
//
// The snapshot is encoded as a google.protobuf.Struct so other tooling can
// read it without the engine's Go types.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yourusername/quantlink-pairs-engine/pkg/strategy"
)

// Snapshot is one saved engine state.
type Snapshot struct {
	RunID   string                  `json:"run_id"`
	SavedAt time.Time               `json:"saved_at"`
	Engine  strategy.EngineSnapshot `json:"engine"`
}

// New wraps an engine snapshot with a fresh run id.
func New(engine strategy.EngineSnapshot) Snapshot {
	return Snapshot{
		RunID:   uuid.NewString(),
		SavedAt: time.Now().UTC(),
		Engine:  engine,
	}
}

// Encode converts a snapshot to protobuf wire bytes.
func Encode(s Snapshot) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to flatten snapshot: %w", err)
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot struct: %w", err)
	}
	data, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses bytes produced by Encode.
func Decode(data []byte) (*Snapshot, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	raw, err := json.Marshal(st.AsMap())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot fields: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	if _, err := uuid.Parse(s.RunID); err != nil {
		return nil, fmt.Errorf("snapshot run id %q: %w", s.RunID, err)
	}
	return &s, nil
}

// Save writes the snapshot to path, replacing any previous file atomically.
func Save(path string, s Snapshot) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}

// Load reads a snapshot from path. A missing file returns nil, nil.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return Decode(data)
}
