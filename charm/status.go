// ABOUTME: Sync status reporting for the Charm KV backend
// ABOUTME: Collects server, account and key counts for the sync commands

package charm

import (
	"fmt"
)

// Status describes the sync state of a client.
type Status struct {
	Host      string
	AutoSync  bool
	Connected bool
	AccountID string
	Keys      int
	Prospects int
	Locations int
}

// SyncStatus gathers the current sync state. An unreachable server is a valid state,
// not an error.
func SyncStatus(c *Client) (Status, error) {
	cfg := c.Config()
	st := Status{Host: cfg.Host, AutoSync: cfg.AutoSync}

	if id, err := c.ID(); err == nil {
		st.Connected = true
		st.AccountID = id
	} else if !c.remote {
		st.Connected = true
	}

	keys, err := c.Keys()
	if err != nil {
		return st, fmt.Errorf("failed to list keys: %w", err)
	}
	st.Keys = len(keys)

	prospects, err := c.KeysWithPrefix([]byte(prospectPrefix))
	if err != nil {
		return st, fmt.Errorf("failed to list prospects: %w", err)
	}
	st.Prospects = len(prospects)

	locations, err := c.KeysWithPrefix([]byte(locationPrefix))
	if err != nil {
		return st, fmt.Errorf("failed to list locations: %w", err)
	}
	st.Locations = len(locations)
	return st, nil
}

// SyncNow performs an immediate sync.
func SyncNow(c *Client) error {
	if err := c.Sync(); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	return nil
}

// Wipe resets the KV store. It deletes all local data.
func Wipe(c *Client) error {
	if err := c.Reset(); err != nil {
		return fmt.Errorf("failed to reset KV store: %w", err)
	}
	return nil
}
