package octomap

import (
	"bytes"
	"errors"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
)

func TestWorkspaceSaveLoad_RoundTrip(t *testing.T) {
	ws := NewWorkspace(0.01)
	ws.InsertScan(Scan{
		Origin:    r3.Vector{X: 0.005, Y: 0.005, Z: 0.005},
		Points:    []r3.Vector{{X: 0.205, Y: 0.015, Z: 0.005}},
		ROIPoints: []r3.Vector{{X: 0.105, Y: 0.105, Z: 0.105}},
	}, 0, 1)

	var buf bytes.Buffer
	if err := ws.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	t.Logf("saved %d bytes", buf.Len())

	loaded := NewWorkspace(0.01)
	if err := loaded.Load(&buf); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want, got := ws.Stats(), loaded.Stats()
	want.Updates, got.Updates = 0, 0
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(ws.ROIKeys(), loaded.ROIKeys()); diff != "" {
		t.Errorf("ROI keys mismatch (-want +got):\n%s", diff)
	}
	loaded.Read(func(r Reader) {
		if r.Occupancy(Key{20, 1, 0}) != Occupied {
			t.Error("occupied endpoint lost in round trip")
		}
	})
}

func TestWorkspaceLoad_Corrupted(t *testing.T) {
	ws := NewWorkspace(0.01)
	ws.InsertScan(Scan{ROIPoints: []r3.Vector{{X: 0.1}}}, 0, 1)
	var buf bytes.Buffer
	if err := ws.Save(&buf); err != nil {
		t.Fatal(err)
	}

	good := buf.Bytes()
	cases := map[string][]byte{
		"empty":     nil,
		"garbage":   []byte("not a tree at all"),
		"truncated": good[:len(good)-3],
		"header":    good[:9],
	}
	for name, data := range cases {
		target := NewWorkspace(0.01)
		target.InsertScan(Scan{ROIPoints: []r3.Vector{{X: 0.3}}}, 0, 1)
		before := target.ROIKeys()

		err := target.Load(bytes.NewReader(data))
		if !errors.Is(err, ErrDeserializationFailed) {
			t.Errorf("%s: expected ErrDeserializationFailed, got %v", name, err)
		}
		if diff := cmp.Diff(before, target.ROIKeys()); diff != "" {
			t.Errorf("%s: workspace changed after failed load:\n%s", name, diff)
		}
	}
}

func TestWorkspaceLoad_WrongType(t *testing.T) {
	tree := NewOccupancyTree(0.01)
	tree.Mark(Key{1, 2, 3}, Occupied)
	var buf bytes.Buffer
	if err := WriteOccupancyTree(&buf, tree, Key{}); err != nil {
		t.Fatal(err)
	}

	err := NewWorkspace(0.01).Load(&buf)
	if !errors.Is(err, ErrWrongTreeType) {
		t.Errorf("expected ErrWrongTreeType, got %v", err)
	}
}

func TestWorkspaceLoad_ResolutionMismatch(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWorkspace(0.02).Save(&buf); err != nil {
		t.Fatal(err)
	}
	if err := NewWorkspace(0.01).Load(&buf); !errors.Is(err, ErrResolutionMismatch) {
		t.Errorf("expected ErrResolutionMismatch, got %v", err)
	}
}

func TestOccupancyTreeFile_Origin(t *testing.T) {
	tree := NewOccupancyTree(0.005)
	for i := int32(0); i < 10; i++ {
		tree.Mark(Key{i, -i, 2 * i}, Occupied)
	}
	origin := Key{32768, 32768, 32768}
	var buf bytes.Buffer
	if err := WriteOccupancyTree(&buf, tree, origin); err != nil {
		t.Fatal(err)
	}
	got, gotOrigin, err := ReadOccupancyTree(&buf)
	if err != nil {
		t.Fatalf("ReadOccupancyTree failed: %v", err)
	}
	if gotOrigin != origin {
		t.Errorf("origin = %v, want %v", gotOrigin, origin)
	}
	if got.Resolution() != 0.005 || got.Len() != 10 || got.Get(Key{3, -3, 6}) != Occupied {
		t.Errorf("tree content lost: res=%v len=%d", got.Resolution(), got.Len())
	}
}

func TestIndexedTreeFile_RoundTrip(t *testing.T) {
	tree := NewIndexedTree(0.01)
	for i := int32(0); i < 5; i++ {
		if _, err := tree.Insert(Key{i, 0, 0}, 1); err != nil {
			t.Fatal(err)
		}
		if _, err := tree.Insert(Key{i, 5, 0}, 2); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if err := WriteIndexedTree(&buf, tree); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ReadOccupancyTree(bytes.NewReader(buf.Bytes())); !errors.Is(err, ErrWrongTreeType) {
		t.Errorf("reading indexed tree as occupancy: got %v", err)
	}
	got, err := ReadIndexedTree(&buf)
	if err != nil {
		t.Fatalf("ReadIndexedTree failed: %v", err)
	}
	if diff := cmp.Diff([]uint32{1, 2}, got.Objects()); diff != "" {
		t.Errorf("objects mismatch:\n%s", diff)
	}
	if idx, ok := got.Index(Key{3, 5, 0}); !ok || idx != 2 {
		t.Errorf("Index = %d, %v", idx, ok)
	}
}

func TestIndexedTree_LastWriterWins(t *testing.T) {
	tree := NewIndexedTree(0.01)
	k := Key{1, 1, 1}
	if _, err := tree.Insert(k, 1); err != nil {
		t.Fatal(err)
	}
	overwrote, err := tree.Insert(k, 2)
	if err != nil || !overwrote {
		t.Fatalf("Insert = %v, %v", overwrote, err)
	}
	if idx, _ := tree.Index(k); idx != 2 {
		t.Errorf("index = %d, want 2", idx)
	}
	if tree.Collisions() != 1 || tree.ObjectSize(1) != 0 || tree.Len() != 1 {
		t.Errorf("collisions=%d size1=%d len=%d", tree.Collisions(), tree.ObjectSize(1), tree.Len())
	}
	if _, err := tree.Insert(k, 0); !errors.Is(err, ErrZeroIndex) {
		t.Errorf("expected ErrZeroIndex, got %v", err)
	}
}
