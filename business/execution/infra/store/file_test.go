package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ndmikkelsen/flashloaner/business/execution/domain"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nonce.json")
	s := NewFileStore(path)

	state := domain.NewNonceState(common.HexToAddress("0x4000000000000000000000000000000000000001"))
	state.Nonce = 12
	state.PendingHash = common.HexToHash("0x01").Hex()
	state.SubmittedAtMs = 1700000000000

	if err := s.Save(ctx, state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Nonce != 12 || loaded.Address != state.Address {
		t.Errorf("loaded = %+v, want saved state", loaded)
	}
	if !loaded.Pending() || loaded.PendingHash != state.PendingHash {
		t.Errorf("pending hash = %q, want %q", loaded.PendingHash, state.PendingHash)
	}
	if loaded.SubmittedAtMs != state.SubmittedAtMs {
		t.Errorf("submitted at = %d, want %d", loaded.SubmittedAtMs, state.SubmittedAtMs)
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))

	state, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state != nil {
		t.Errorf("state = %+v, want nil for a missing file", state)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonce.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := NewFileStore(path).Load(context.Background()); err == nil {
		t.Error("expected error for corrupt state file")
	}
}

func TestFileStoreOverwrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nonce.json")
	s := NewFileStore(path)

	state := domain.NewNonceState(common.HexToAddress("0x4000000000000000000000000000000000000001"))
	state.Nonce = 1
	if err := s.Save(ctx, state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	state.Nonce = 2
	state.PendingHash = ""
	if err := s.Save(ctx, state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Nonce != 2 || loaded.Pending() {
		t.Errorf("loaded = %+v, want clean nonce 2", loaded)
	}
}
