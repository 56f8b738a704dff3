package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/notely/notely/internal/adapter"
)

// fakeDynamo stores raw attribute maps by pk. Scan ignores the filter and
// pages two items at a time.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	order []string
	scans int
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func pkOf(key map[string]types.AttributeValue) string {
	return key["pk"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[pkOf(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := pkOf(in.Item)
	if _, ok := f.items[pk]; !ok {
		f.order = append(f.order, pk)
	}
	f.items[pk] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, pkOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++
	var live []string
	for _, pk := range f.order {
		if _, ok := f.items[pk]; ok {
			live = append(live, pk)
		}
	}
	start := 0
	if in.ExclusiveStartKey != nil {
		last := pkOf(in.ExclusiveStartKey)
		for i, pk := range live {
			if pk == last {
				start = i + 1
			}
		}
	}
	end := start + 2
	if end > len(live) {
		end = len(live)
	}
	out := &dynamodb.ScanOutput{}
	for _, pk := range live[start:end] {
		out.Items = append(out.Items, f.items[pk])
	}
	if end < len(live) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: live[end-1]}}
	}
	return out, nil
}

func TestMemoryAdapter_DynamoPersistence(t *testing.T) {
	db := newFakeDynamo()
	ctx := context.Background()
	m := newAdapter(t, "user1", WithDynamo(db, "FileStore"))
	other := newAdapter(t, "user2", WithDynamo(db, "FileStore"))

	f, err := m.CreateFolder(ctx, "Persisted")
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	for _, title := range []string{"a", "b", "c"} {
		if _, err := m.CreateNote(ctx, f.ID, title, "<p>"+title+"</p>"); err != nil {
			t.Fatalf("CreateNote: %v", err)
		}
	}
	if _, err := other.CreateFolder(ctx, "Other"); err != nil {
		t.Fatal(err)
	}

	notes, err := m.ListNotes(ctx, f.ID, adapter.Page{Limit: 20})
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(notes) != 3 || notes[0].Title != "a" || notes[2].Content != "<p>c</p>" {
		t.Errorf("notes = %+v", notes)
	}
	folders, _ := m.ListFolders(ctx, adapter.Page{Limit: 20})
	if len(folders) != 1 || folders[0].Name != "Persisted" {
		t.Errorf("folders = %+v, other user's folder leaked or lost", folders)
	}
	if db.scans < 2 {
		t.Error("scan pagination not followed")
	}

	if _, err := m.DeleteFolder(ctx, f.ID); err != nil {
		t.Fatalf("DeleteFolder: %v", err)
	}
	if len(db.items) != 1 {
		t.Errorf("items left = %d, want only user2's folder", len(db.items))
	}
	if _, err := m.GetFolder(ctx, f.ID); !errors.Is(err, adapter.ErrNotFound) {
		t.Errorf("GetFolder after delete: %v", err)
	}
}

func TestWithDynamo_NilClientKeepsMap(t *testing.T) {
	p := NewProvider(WithDynamo(nil, "FileStore"))
	if _, ok := p.store.(*mapStore); !ok {
		t.Errorf("store = %T, want *mapStore", p.store)
	}
}
