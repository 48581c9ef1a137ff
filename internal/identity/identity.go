// Package identity resolves the device id and conversation key a chat runs
// under. Values live in a small key-value Store so browsers, the CLI and
// tests can each supply their own backing.
package identity

import (
	"errors"

	"github.com/google/uuid"
)

const (
	DeviceKey       = "deviceId"
	ConversationKey = "conversationId"
)

// Store is a string key-value store.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// Identity is the pair a conversation is stored under.
type Identity struct {
	DeviceID        string
	ConversationKey string
}

// DeviceID returns the stored device id, generating and saving one on first use.
func DeviceID(store Store) (string, error) {
	return getOrCreate(store, DeviceKey)
}

// ConversationID returns override when it is set, otherwise the device's
// default conversation key, creating it on first use. An override is not
// saved.
func ConversationID(store Store, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	return getOrCreate(store, ConversationKey)
}

// Resolve returns both parts of the identity. When the store cannot save a
// generated value the identity is still complete and the save errors are
// returned alongside it.
func Resolve(store Store, override string) (Identity, error) {
	deviceID, deviceErr := DeviceID(store)
	key, keyErr := ConversationID(store, override)
	return Identity{DeviceID: deviceID, ConversationKey: key}, errors.Join(deviceErr, keyErr)
}

func getOrCreate(store Store, key string) (string, error) {
	if v, ok := store.Get(key); ok && v != "" {
		return v, nil
	}
	v := uuid.NewString()
	if err := store.Set(key, v); err != nil {
		// still usable for this run
		return v, err
	}
	return v, nil
}
