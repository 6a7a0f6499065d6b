package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/canvas-sync/internal/models"
)

// Winner identifies which copy of a record the cache keeps.
type Winner int

const (
	WinnerRemote Winner = iota
	WinnerLocal
)

const (
	StrategyServerWins = "server_wins"
	StrategyMostRecent = "most_recent"
)

// ConflictResolver decides between the cached and the freshly fetched copy of a record.
// local is nil when the record is not cached yet.
type ConflictResolver interface {
	Resolve(local, remote models.SyncRecord) Winner
	Name() string
}

// ServerWins always keeps the remote copy.
type ServerWins struct{}

func (ServerWins) Resolve(models.SyncRecord, models.SyncRecord) Winner { return WinnerRemote }

func (ServerWins) Name() string { return StrategyServerWins }

// MostRecentWins keeps the local copy only when it carries a strictly newer remote modification time.
// Missing locals, stub rows and records without timestamps always take the remote copy.
type MostRecentWins struct{}

func (MostRecentWins) Resolve(local, remote models.SyncRecord) Winner {
	if local == nil || remote == nil {
		return WinnerRemote
	}
	if stub, ok := local.(interface{ IsPlaceholder() bool }); ok && stub.IsPlaceholder() {
		return WinnerRemote
	}

	localAt, remoteAt := local.RemoteModifiedAt(), remote.RemoteModifiedAt()
	if localAt == nil || remoteAt == nil {
		return WinnerRemote
	}
	if localAt.After(*remoteAt) {
		return WinnerLocal
	}
	return WinnerRemote
}

func (MostRecentWins) Name() string { return StrategyMostRecent }

// NewConflictResolver maps a configured strategy name onto a resolver.
func NewConflictResolver(strategy string) (ConflictResolver, error) {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case "", StrategyServerWins:
		return ServerWins{}, nil
	case StrategyMostRecent:
		return MostRecentWins{}, nil
	default:
		return nil, fmt.Errorf("unknown conflict strategy %q", strategy)
	}
}

// partitionByResolver splits remote rows into rows to upsert and ids of cached rows that won and
// only need their sync stamp refreshed.
func partitionByResolver[T models.SyncRecord](resolver ConflictResolver, locals, remotes []T) ([]T, []string) {
	index := make(map[string]T, len(locals))
	for _, local := range locals {
		index[local.RecordID()] = local
	}

	upserts := make([]T, 0, len(remotes))
	var touched []string
	for _, remote := range remotes {
		var local models.SyncRecord
		if cached, ok := index[remote.RecordID()]; ok {
			local = cached
		}
		if resolver.Resolve(local, remote) == WinnerLocal {
			touched = append(touched, remote.RecordID())
			continue
		}
		upserts = append(upserts, remote)
	}
	return upserts, touched
}
