package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type doc struct {
	Version int      `json:"version"`
	Items   []string `json:"items"`
}

func seedDoc() doc { return doc{Version: 1, Items: []string{}} }

func TestCollection_MissingFileYieldsSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	col := NewCollection(path, seedDoc, nil)

	got := col.Load()
	if got.Version != 1 || len(got.Items) != 0 {
		t.Fatalf("load of missing file = %+v, want seed", got)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("load must not create the backing file")
	}
}

func TestCollection_SaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")
	col := NewCollection(path, seedDoc, nil)

	want := doc{Version: 2, Items: []string{"a", "b", "c"}}
	if err := col.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := col.Load()
	if got.Version != want.Version || len(got.Items) != 3 || got.Items[2] != "c" {
		t.Fatalf("roundtrip = %+v, want %+v", got, want)
	}

	// The on-disk document is valid standalone JSON.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read backing file: %v", err)
	}
	var check doc
	if err := json.Unmarshal(data, &check); err != nil {
		t.Fatalf("backing file is not valid JSON: %v", err)
	}
}

func TestCollection_CorruptFileYieldsSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := os.WriteFile(path, []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	col := NewCollection(path, seedDoc, nil)

	got := col.Load()
	if got.Version != 1 {
		t.Fatalf("load of corrupt file = %+v, want seed", got)
	}
}

func TestCollection_NilSeedYieldsZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	col := NewCollection[doc](path, nil, nil)

	got := col.Load()
	if got.Version != 0 || got.Items != nil {
		t.Fatalf("load = %+v, want zero value", got)
	}
}

func TestCollection_UpdateAbortLeavesFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	col := NewCollection(path, seedDoc, nil)
	if err := col.Save(doc{Version: 1, Items: []string{"keep"}}); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(path)

	err := col.Update(func(d *doc) error {
		d.Items = append(d.Items, "dropped")
		return os.ErrPermission
	})
	if err == nil {
		t.Fatal("update should propagate fn error")
	}

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Fatal("aborted update must leave the file byte-identical")
	}
}

func TestCollection_ConcurrentUpdatesNoLostWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	col := NewCollection(path, seedDoc, nil)

	const writers = 8
	const perWriter = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				err := col.Update(func(d *doc) error {
					d.Items = append(d.Items, "x")
					return nil
				})
				if err != nil {
					t.Errorf("update: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	got := col.Load()
	if len(got.Items) != writers*perWriter {
		t.Fatalf("items = %d, want %d (lost updates)", len(got.Items), writers*perWriter)
	}
}
