// Package identity persists the tracker's identity across restarts so
// history exported from a device stays attributable.
package identity

import (
	"os"

	"github.com/benmeehan/tracklog-agent/pkg/file"
	"github.com/google/uuid"
)

// Identity holds the tracker's unique identifier and display name.
type Identity struct {
	ID   string `json:"tracker_id,omitempty"`
	Name string `json:"tracker_name,omitempty"`
}

// TrackerInfoInterface defines methods for managing the tracker identity.
type TrackerInfoInterface interface {
	Load() error
	GetTrackerID() string
	GetIdentity() *Identity
}

// TrackerInfo manages the tracker identity and its backing file.
type TrackerInfo struct {
	identityFile string
	identity     Identity
	fileOps      file.FileOperations
}

// NewTrackerInfo initializes a new TrackerInfo instance.
func NewTrackerInfo(filePath string, fileOps file.FileOperations) TrackerInfoInterface {
	return &TrackerInfo{
		identityFile: filePath,
		fileOps:      fileOps,
	}
}

// Load reads the identity file, generating and persisting a fresh ID on
// first run.
func (t *TrackerInfo) Load() error {
	err := t.fileOps.ReadJsonFile(t.identityFile, &t.identity)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	if t.identity.ID == "" {
		t.identity.ID = uuid.New().String()
		return t.fileOps.WriteJsonFile(t.identityFile, t.identity)
	}
	return nil
}

// GetTrackerID returns the current tracker ID.
func (t *TrackerInfo) GetTrackerID() string {
	return t.identity.ID
}

// GetIdentity returns the current Identity.
func (t *TrackerInfo) GetIdentity() *Identity {
	return &t.identity
}
