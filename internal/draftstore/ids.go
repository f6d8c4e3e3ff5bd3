package draftstore

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

// Origin classifies how a draft came to exist. The historical scheme inferred this from the id
// prefix; new rows carry it explicitly and the prefix is kept only for wire/storage
// compatibility.
type Origin string

const (
	// OriginFresh is new anonymous/unsaved work started in this client.
	OriginFresh Origin = "fresh"
	// OriginFork is work forked from another user's shared strudel.
	OriginFork Origin = "fork"
	// OriginCloudBackup is a local crash-recovery copy of a cloud-saved strudel, keyed by the
	// strudel's own id. It is never authoritative.
	OriginCloudBackup Origin = "cloud_backup"
)

func NormalizeOrigin(raw string) Origin {
	switch Origin(strings.ToLower(strings.TrimSpace(raw))) {
	case OriginFresh:
		return OriginFresh
	case OriginFork:
		return OriginFork
	case OriginCloudBackup:
		return OriginCloudBackup
	default:
		return ""
	}
}

// OriginForID infers the origin from the legacy id namespaces: "draft_..." for fresh work,
// "fork_..." for forks, and anything else is treated as a cloud backup keyed by strudel id.
func OriginForID(id string) Origin {
	id = strings.TrimSpace(id)
	switch {
	case id == "":
		return ""
	case strings.HasPrefix(id, "draft_"):
		return OriginFresh
	case strings.HasPrefix(id, "fork_"):
		return OriginFork
	default:
		return OriginCloudBackup
	}
}

// GenerateDraftID returns a fresh draft id of the form draft_<unix-ms>_<random>.
//
// The format is persisted and must stay stable: ^draft_\d+_[a-z0-9]+$. The random suffix keeps
// rapid repeated calls within the same millisecond collision-free.
func GenerateDraftID() string {
	return fmt.Sprintf("draft_%d_%s", time.Now().UnixMilli(), randBase36(8))
}

// GenerateForkID returns a fresh fork draft id of the form fork_<unix-ms>_<random>.
func GenerateForkID() string {
	return fmt.Sprintf("fork_%d_%s", time.Now().UnixMilli(), randBase36(8))
}

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func randBase36(n int) string {
	if n <= 0 {
		n = 8
	}
	b := make([]byte, n)
	_, _ = rand.Read(b)
	out := make([]byte, n)
	for i, v := range b {
		out[i] = base36Alphabet[int(v)%len(base36Alphabet)]
	}
	return string(out)
}
