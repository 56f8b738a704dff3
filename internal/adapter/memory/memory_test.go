package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/notely/notely/internal/adapter"
)

// tick is a clock that advances one second per call.
func tick() func() time.Time {
	t := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newAdapter(t *testing.T, userID string, opts ...Option) *MemoryAdapter {
	t.Helper()
	p := NewProvider(append([]Option{WithClock(tick())}, opts...)...)
	a, err := p.GetAdapter(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetAdapter: %v", err)
	}
	return a.(*MemoryAdapter)
}

func TestMemoryAdapter_FoldersSortedAndPaged(t *testing.T) {
	m := newAdapter(t, "user1")
	ctx := context.Background()

	for _, name := range []string{"A", "B", "C"} {
		if _, err := m.CreateFolder(ctx, name); err != nil {
			t.Fatalf("CreateFolder(%s): %v", name, err)
		}
	}

	all, err := m.ListFolders(ctx, adapter.Page{Limit: 20})
	if err != nil {
		t.Fatalf("ListFolders: %v", err)
	}
	if len(all) != 3 || all[0].Name != "A" || all[2].Name != "C" {
		t.Fatalf("folders = %+v", all)
	}

	page, _ := m.ListFolders(ctx, adapter.Page{Limit: 1, Offset: 1})
	if len(page) != 1 || page[0].Name != "B" {
		t.Errorf("page = %+v, want [B]", page)
	}
	past, _ := m.ListFolders(ctx, adapter.Page{Limit: 5, Offset: 10})
	if past == nil || len(past) != 0 {
		t.Errorf("past end = %#v, want empty non-nil slice", past)
	}
}

func TestMemoryAdapter_RenameFolder(t *testing.T) {
	m := newAdapter(t, "user1")
	ctx := context.Background()
	f, _ := m.CreateFolder(ctx, "Old")

	renamed, err := m.RenameFolder(ctx, f.ID, "New")
	if err != nil {
		t.Fatalf("RenameFolder: %v", err)
	}
	if renamed.Name != "New" || !renamed.CreatedAt.Equal(f.CreatedAt) {
		t.Errorf("renamed = %+v", renamed)
	}
	if _, err := m.RenameFolder(ctx, "missing", "x"); !errors.Is(err, adapter.ErrNotFound) {
		t.Errorf("rename unknown: %v, want ErrNotFound", err)
	}
}

func TestMemoryAdapter_NotesLifecycle(t *testing.T) {
	m := newAdapter(t, "user1")
	ctx := context.Background()
	f, _ := m.CreateFolder(ctx, "F")

	first, err := m.CreateNote(ctx, f.ID, "First", "")
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	second, _ := m.CreateNote(ctx, f.ID, "Second", "<p>2</p>")

	// Updating the first note moves it to the end.
	updated, err := m.UpdateNote(ctx, f.ID, first.ID, adapter.NotePatch{Content: strPtr("<p>1</p>")})
	if err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	if updated.Title != "First" || updated.Content != "<p>1</p>" {
		t.Errorf("updated = %+v", updated)
	}
	if !updated.LastUpdatedAt.After(first.LastUpdatedAt) {
		t.Error("LastUpdatedAt not refreshed")
	}

	notes, _ := m.ListNotes(ctx, f.ID, adapter.Page{Limit: 20})
	if len(notes) != 2 || notes[0].ID != second.ID || notes[1].ID != first.ID {
		t.Errorf("notes order = %+v", notes)
	}

	deleted, err := m.DeleteNote(ctx, f.ID, second.ID)
	if err != nil || deleted.ID != second.ID {
		t.Fatalf("DeleteNote = %+v, %v", deleted, err)
	}
	notes, _ = m.ListNotes(ctx, f.ID, adapter.Page{Limit: 20})
	if len(notes) != 1 {
		t.Errorf("notes after delete = %d, want 1", len(notes))
	}
}

func TestMemoryAdapter_CreateNoteUnknownFolder(t *testing.T) {
	m := newAdapter(t, "user1")
	_, err := m.CreateNote(context.Background(), "nope", "T", "")
	if !errors.Is(err, adapter.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryAdapter_NoteInWrongFolder(t *testing.T) {
	m := newAdapter(t, "user1")
	ctx := context.Background()
	a, _ := m.CreateFolder(ctx, "A")
	b, _ := m.CreateFolder(ctx, "B")
	n, _ := m.CreateNote(ctx, a.ID, "T", "")

	if _, err := m.UpdateNote(ctx, b.ID, n.ID, adapter.NotePatch{Title: strPtr("x")}); !errors.Is(err, adapter.ErrNotFound) {
		t.Errorf("update via wrong folder: %v", err)
	}
	if _, err := m.DeleteNote(ctx, b.ID, n.ID); !errors.Is(err, adapter.ErrNotFound) {
		t.Errorf("delete via wrong folder: %v", err)
	}
}

func TestMemoryAdapter_IfMatch(t *testing.T) {
	m := newAdapter(t, "user1")
	ctx := context.Background()
	f, _ := m.CreateFolder(ctx, "F")
	n, _ := m.CreateNote(ctx, f.ID, "T", "v1")

	v2, err := m.UpdateNote(ctx, f.ID, n.ID, adapter.NotePatch{Content: strPtr("v2"), IfMatch: n.Version()})
	if err != nil {
		t.Fatalf("matching version rejected: %v", err)
	}
	_, err = m.UpdateNote(ctx, f.ID, n.ID, adapter.NotePatch{Content: strPtr("v3"), IfMatch: n.Version()})
	if !errors.Is(err, adapter.ErrPreconditionFailed) {
		t.Errorf("stale version: %v, want ErrPreconditionFailed", err)
	}
	if _, err := m.UpdateNote(ctx, f.ID, n.ID, adapter.NotePatch{Content: strPtr("v3"), IfMatch: v2.Version()}); err != nil {
		t.Errorf("current version rejected: %v", err)
	}
}

func TestMemoryAdapter_DeleteFolderCascades(t *testing.T) {
	m := newAdapter(t, "user1")
	ctx := context.Background()
	f, _ := m.CreateFolder(ctx, "F")
	n, _ := m.CreateNote(ctx, f.ID, "T", "")

	deleted, err := m.DeleteFolder(ctx, f.ID)
	if err != nil || deleted.Name != "F" {
		t.Fatalf("DeleteFolder = %+v, %v", deleted, err)
	}
	if _, err := m.ListNotes(ctx, f.ID, adapter.Page{}); !errors.Is(err, adapter.ErrNotFound) {
		t.Errorf("ListNotes after delete: %v", err)
	}
	if _, err := m.store.get(ctx, n.ID); !errors.Is(err, adapter.ErrNotFound) {
		t.Error("note survived its folder")
	}
}

func TestMemoryAdapter_UsersAreIsolated(t *testing.T) {
	p := NewProvider()
	ctx := context.Background()
	alice, _ := p.GetAdapter(ctx, "alice")
	bob, _ := p.GetAdapter(ctx, "bob")

	f, _ := alice.CreateFolder(ctx, "Private")

	if list, _ := bob.ListFolders(ctx, adapter.Page{Limit: 20}); len(list) != 0 {
		t.Errorf("bob sees %d folders", len(list))
	}
	if _, err := bob.RenameFolder(ctx, f.ID, "mine"); !errors.Is(err, adapter.ErrNotFound) {
		t.Errorf("bob renamed alice's folder: %v", err)
	}
	if _, err := bob.DeleteFolder(ctx, f.ID); !errors.Is(err, adapter.ErrNotFound) {
		t.Errorf("bob deleted alice's folder: %v", err)
	}
	again, _ := p.GetAdapter(ctx, "alice")
	if again != alice {
		t.Error("provider did not reuse the user's adapter")
	}
}

func TestMemoryAdapter_Limits(t *testing.T) {
	ctx := context.Background()
	m := newAdapter(t, "user1")
	f, _ := m.CreateFolder(ctx, "F")

	t.Run("Title length limit", func(t *testing.T) {
		longName := strings.Repeat("a", maxDemoTitleLength+1)
		_, err := m.CreateNote(ctx, f.ID, longName, "")
		if !errors.Is(err, adapter.ErrLimitExceeded) || !strings.Contains(err.Error(), "name too long") {
			t.Errorf("Expected error about name length, got: %v", err)
		}
	})

	t.Run("Title length counts characters", func(t *testing.T) {
		title := strings.Repeat("ü", 200)
		if _, err := m.CreateNote(ctx, f.ID, title, ""); err != nil {
			t.Errorf("200-character title rejected: %v", err)
		}
		if _, err := m.CreateFolder(ctx, strings.Repeat("日", maxDemoTitleLength+1)); !errors.Is(err, adapter.ErrLimitExceeded) {
			t.Errorf("256-character name = %v", err)
		}
	})

	t.Run("Content size limit", func(t *testing.T) {
		large := strings.Repeat("x", maxDemoContentSize+1)
		_, err := m.CreateNote(ctx, f.ID, "t", large)
		if !errors.Is(err, adapter.ErrLimitExceeded) || !strings.Contains(err.Error(), "content too large") {
			t.Errorf("Expected error about content size, got: %v", err)
		}
	})

	t.Run("Item count limit", func(t *testing.T) {
		m2 := newAdapter(t, "user2")
		for i := 0; i < maxDemoItemCount; i++ {
			if _, err := m2.CreateFolder(ctx, "folder"); err != nil {
				t.Fatalf("Failed to create item %d: %v", i, err)
			}
		}
		_, err := m2.CreateFolder(ctx, "overflow")
		if !errors.Is(err, adapter.ErrLimitExceeded) {
			t.Errorf("Expected item limit error, got: %v", err)
		}
	})
}

func TestMemoryAdapter_WithoutLimits(t *testing.T) {
	ctx := context.Background()
	m := newAdapter(t, "user1", WithoutLimits())

	f, err := m.CreateFolder(ctx, strings.Repeat("a", maxDemoTitleLength+1))
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if _, err := m.CreateNote(ctx, f.ID, "big", strings.Repeat("x", maxDemoContentSize+1)); err != nil {
		t.Errorf("large content rejected: %v", err)
	}
	for i := 0; i < maxDemoItemCount; i++ {
		if _, err := m.CreateFolder(ctx, "folder"); err != nil {
			t.Fatalf("folder %d: %v", i, err)
		}
	}
}

func strPtr(s string) *string { return &s }

var _ adapter.StorageAdapter = (*MemoryAdapter)(nil)
