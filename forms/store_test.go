package forms

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestFormStoreInterfaceExists(t *testing.T) {
	var _ FormStore = (*InMemoryFormStore)(nil)
	var _ FormStore = (*PostgresFormStore)(nil)
}

func TestInMemoryFormStoreAdd(t *testing.T) {
	store := NewInMemoryFormStore()

	form := &Form{ID: "form-1", OwnerID: "user-1", Title: "Intake"}
	if err := store.Add(form); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	retrieved, err := store.Get("form-1")
	if err != nil {
		t.Fatalf("Get() failed after Add(): %v", err)
	}
	if retrieved.Title != "Intake" {
		t.Errorf("Retrieved form Title = %s, want Intake", retrieved.Title)
	}
	if retrieved.CreatedAt.IsZero() || !retrieved.CreatedAt.Equal(retrieved.UpdatedAt) {
		t.Errorf("Add() should stamp CreatedAt and UpdatedAt, got %v / %v", retrieved.CreatedAt, retrieved.UpdatedAt)
	}
}

func TestInMemoryFormStoreAddDuplicate(t *testing.T) {
	store := NewInMemoryFormStore()

	if err := store.Add(&Form{ID: "dup"}); err != nil {
		t.Fatalf("First Add() should succeed: %v", err)
	}
	if err := store.Add(&Form{ID: "dup"}); err == nil {
		t.Error("Second Add() with the same ID should fail")
	}
}

func TestInMemoryFormStoreNotFound(t *testing.T) {
	store := NewInMemoryFormStore()

	testCases := []struct {
		name string
		call func() error
	}{
		{name: "get", call: func() error { _, err := store.Get("missing"); return err }},
		{name: "update", call: func() error { return store.Update(&Form{ID: "missing"}) }},
		{name: "delete", call: func() error { return store.Delete("missing") }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.call(); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestInMemoryFormStoreListByOwner(t *testing.T) {
	store := NewInMemoryFormStore()

	for _, f := range []*Form{
		{ID: "a", OwnerID: "alice"},
		{ID: "b", OwnerID: "bob"},
		{ID: "c", OwnerID: "alice"},
	} {
		if err := store.Add(f); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	owned, err := store.ListByOwner("alice")
	if err != nil {
		t.Fatalf("ListByOwner() failed: %v", err)
	}
	if len(owned) != 2 {
		t.Fatalf("Expected 2 forms, got %d", len(owned))
	}
	if owned[0].ID != "c" || owned[1].ID != "a" {
		t.Errorf("Expected newest first [c a], got [%s %s]", owned[0].ID, owned[1].ID)
	}

	none, err := store.ListByOwner("carol")
	if err != nil {
		t.Fatalf("ListByOwner() failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Expected no forms for carol, got %d", len(none))
	}
}

func TestInMemoryFormStoreUpdatePreservesCreatedAt(t *testing.T) {
	store := NewInMemoryFormStore()

	original := &Form{ID: "form-1", Title: "Before"}
	if err := store.Add(original); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	created := original.CreatedAt

	time.Sleep(time.Millisecond)
	if err := store.Update(&Form{ID: "form-1", Title: "After"}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	updated, _ := store.Get("form-1")
	if updated.Title != "After" {
		t.Errorf("Title = %s, want After", updated.Title)
	}
	if !updated.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed from %v to %v", created, updated.CreatedAt)
	}
	if !updated.UpdatedAt.After(created) {
		t.Errorf("UpdatedAt %v should be after %v", updated.UpdatedAt, created)
	}
}

func TestInMemoryFormStoreConcurrentAccess(t *testing.T) {
	store := NewInMemoryFormStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('A' + i%26)) + string(rune('a'+i/26))
			store.Add(&Form{ID: id, OwnerID: "owner"})
			store.Get(id)
			store.ListByOwner("owner")
		}(i)
	}
	wg.Wait()

	owned, _ := store.ListByOwner("owner")
	if len(owned) != 50 {
		t.Errorf("Expected 50 forms, got %d", len(owned))
	}
}
