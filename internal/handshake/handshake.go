// Package handshake resolves and pins which storage engine a server
// directory uses, so a directory written with one engine can never be
// silently reopened with another.
package handshake

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kvsd/kvs/internal/kverrors"
)

// FileName is the sidecar file the pinned engine choice lives in.
const FileName = "config.json"

// Engine identifies a storage engine choice.
type Engine string

const (
	EngineKVS     Engine = "kvs"
	EngineSled    Engine = "sled"
	EngineDefault Engine = "default"
)

// Resolved is the sidecar's on-disk shape.
type Resolved struct {
	EngineType Engine `json:"engine_type"`
}

// Resolve pins requested against the sidecar file in dir.
//
// If the sidecar does not exist, requested (or EngineKVS if the user
// asked for EngineDefault) is written and returned. If it exists, the
// stored choice must match requested — unless requested is
// EngineDefault, which accepts whatever was previously pinned —
// otherwise Resolve fails with a kverrors.UnexpectedConfig error.
func Resolve(dir string, requested Engine) (Engine, error) {
	path := filepath.Join(dir, FileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", kverrors.IOErr("handshake: read sidecar", err)
		}

		resolved := requested
		if resolved == EngineDefault || resolved == "" {
			resolved = EngineKVS
		}
		if err := write(path, resolved); err != nil {
			return "", err
		}
		return resolved, nil
	}

	var stored Resolved
	if err := json.Unmarshal(data, &stored); err != nil {
		return "", kverrors.Sered("handshake: parse sidecar", err)
	}

	if requested != EngineDefault && requested != "" && requested != stored.EngineType {
		return "", kverrors.New(kverrors.UnexpectedConfig,
			fmt.Sprintf("handshake: store was pinned to %q, cannot open with %q", stored.EngineType, requested))
	}
	return stored.EngineType, nil
}

func write(path string, e Engine) error {
	data, err := json.Marshal(Resolved{EngineType: e})
	if err != nil {
		return kverrors.Sered("handshake: marshal sidecar", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return kverrors.IOErr("handshake: write sidecar", err)
	}
	return nil
}
