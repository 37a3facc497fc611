package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"imagestudio/history"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(newTestDatabase(t))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	return repo
}

func sampleImages(n int) []history.GeneratedImage {
	items := make([]history.GeneratedImage, n)
	for i := range items {
		items[i] = history.GeneratedImage{
			ID:       uuid.New(),
			Data:     []byte{byte(i), 0xFF},
			MimeType: "image/png",
			Prompt:   fmt.Sprintf("prompt %d", i),
			Width:    512,
			Height:   512,
		}
	}
	return items
}

func TestReplaceAndLoadCollection(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	items := sampleImages(3)
	if err := repo.ReplaceCollection(ctx, "generation", items); err != nil {
		t.Fatalf("ReplaceCollection: %v", err)
	}

	loaded, err := repo.LoadCollection(ctx, "generation")
	if err != nil {
		t.Fatalf("LoadCollection: %v", err)
	}
	if len(loaded) != len(items) {
		t.Fatalf("loaded %d items, want %d", len(loaded), len(items))
	}
	for i := range items {
		if loaded[i].ID != items[i].ID {
			t.Errorf("item %d ID = %s, want %s (order must be preserved)", i, loaded[i].ID, items[i].ID)
		}
		if loaded[i].Prompt != items[i].Prompt {
			t.Errorf("item %d prompt = %q, want %q", i, loaded[i].Prompt, items[i].Prompt)
		}
		if string(loaded[i].Data) != string(items[i].Data) {
			t.Errorf("item %d data mismatch", i)
		}
		if loaded[i].Width != 512 || loaded[i].Height != 512 {
			t.Errorf("item %d dimensions = %dx%d, want 512x512", i, loaded[i].Width, loaded[i].Height)
		}
	}
}

func TestReplaceCollectionOverwrites(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if err := repo.ReplaceCollection(ctx, "generation", sampleImages(5)); err != nil {
		t.Fatalf("first ReplaceCollection: %v", err)
	}
	next := sampleImages(2)
	if err := repo.ReplaceCollection(ctx, "generation", next); err != nil {
		t.Fatalf("second ReplaceCollection: %v", err)
	}

	loaded, err := repo.LoadCollection(ctx, "generation")
	if err != nil {
		t.Fatalf("LoadCollection: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d items, want 2 (old contents replaced)", len(loaded))
	}
	if loaded[0].ID != next[0].ID {
		t.Error("replacement did not preserve new item order")
	}
}

func TestReplaceCollectionEmptyClears(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if err := repo.ReplaceCollection(ctx, "edit", sampleImages(3)); err != nil {
		t.Fatalf("ReplaceCollection: %v", err)
	}
	if err := repo.ReplaceCollection(ctx, "edit", nil); err != nil {
		t.Fatalf("ReplaceCollection(nil): %v", err)
	}

	loaded, err := repo.LoadCollection(ctx, "edit")
	if err != nil {
		t.Fatalf("LoadCollection: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("loaded %d items, want 0", len(loaded))
	}
}

func TestCollectionsAreIndependent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	gen := sampleImages(2)
	edit := sampleImages(3)
	if err := repo.ReplaceCollection(ctx, "generation", gen); err != nil {
		t.Fatal(err)
	}
	if err := repo.ReplaceCollection(ctx, "edit", edit); err != nil {
		t.Fatal(err)
	}

	loadedGen, err := repo.LoadCollection(ctx, "generation")
	if err != nil {
		t.Fatal(err)
	}
	loadedEdit, err := repo.LoadCollection(ctx, "edit")
	if err != nil {
		t.Fatal(err)
	}
	if len(loadedGen) != 2 || len(loadedEdit) != 3 {
		t.Errorf("collections bled into each other: generation=%d edit=%d", len(loadedGen), len(loadedEdit))
	}
}

func TestLoadCollectionEmptyDatabase(t *testing.T) {
	repo := newTestRepository(t)

	loaded, err := repo.LoadCollection(context.Background(), "generation")
	if err != nil {
		t.Fatalf("LoadCollection: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("loaded %d items from an empty database", len(loaded))
	}
}

func TestSettings(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	// Missing key returns the default.
	got, err := repo.GetSetting(ctx, "provider", "gemini")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if got != "gemini" {
		t.Errorf("GetSetting default = %q, want %q", got, "gemini")
	}

	if err := repo.SetSetting(ctx, "provider", "openai"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	got, err = repo.GetSetting(ctx, "provider", "gemini")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if got != "openai" {
		t.Errorf("GetSetting = %q, want %q", got, "openai")
	}

	// Upsert overwrites.
	if err := repo.SetSetting(ctx, "provider", "gemini"); err != nil {
		t.Fatalf("SetSetting (overwrite): %v", err)
	}
	got, err = repo.GetSetting(ctx, "provider", "")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if got != "gemini" {
		t.Errorf("GetSetting after overwrite = %q, want %q", got, "gemini")
	}
}

func TestRepositoryImplementsSaver(t *testing.T) {
	var _ history.Saver = (*Repository)(nil)
}
