package studio

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"imagestudio/core"
	"imagestudio/genimg"
	"imagestudio/history"
	"imagestudio/pipeline"
	"imagestudio/prompt"
)

// fakeProvider records requests and returns a fixed image.
type fakeProvider struct {
	mu        sync.Mutex
	generates []genimg.GenerateRequest
	edits     []genimg.EditRequest
	genErr    error
	editErr   error
	elaborate string

	// genHook, when set, runs while a Generate call is in flight.
	genHook func()
}

func (f *fakeProvider) Generate(ctx context.Context, req genimg.GenerateRequest) (*genimg.ImageResult, error) {
	f.mu.Lock()
	f.generates = append(f.generates, req)
	f.mu.Unlock()
	if f.genHook != nil {
		f.genHook()
	}
	if f.genErr != nil {
		return nil, f.genErr
	}
	return &genimg.ImageResult{Data: testPNG(4, 4), MimeType: "image/png", Width: 4, Height: 4}, nil
}

func (f *fakeProvider) Edit(ctx context.Context, req genimg.EditRequest) (*genimg.ImageResult, error) {
	f.mu.Lock()
	f.edits = append(f.edits, req)
	f.mu.Unlock()
	if f.editErr != nil {
		return nil, f.editErr
	}
	return &genimg.ImageResult{Data: testPNG(4, 4), MimeType: "image/png", Width: 4, Height: 4}, nil
}

func (f *fakeProvider) Elaborate(ctx context.Context, p string) (string, error) {
	if f.elaborate != "" {
		return f.elaborate, nil
	}
	return p + ", elaborated", nil
}

// memStore is an in-memory SettingsStore.
type memStore struct {
	mu          sync.Mutex
	collections map[string][]history.GeneratedImage
	settings    map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		collections: make(map[string][]history.GeneratedImage),
		settings:    make(map[string]string),
	}
}

func (m *memStore) ReplaceCollection(ctx context.Context, name string, items []history.GeneratedImage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[name] = append([]history.GeneratedImage(nil), items...)
	return nil
}

func (m *memStore) LoadCollection(ctx context.Context, name string) ([]history.GeneratedImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]history.GeneratedImage(nil), m.collections[name]...), nil
}

func (m *memStore) GetSetting(ctx context.Context, key, defaultValue string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.settings[key]; ok {
		return v, nil
	}
	return defaultValue, nil
}

func (m *memStore) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

// testPNG builds a small valid PNG payload.
func testPNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func newTestStudio(t *testing.T, provider genimg.Provider, store SettingsStore) *Studio {
	t.Helper()
	engine, err := pipeline.NewEngine(pipeline.Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		ItemCooldown:   time.Millisecond,
		Tick:           time.Millisecond,
	}, pipeline.NewSession(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	s, err := New(Config{
		Provider: provider,
		Engine:   engine,
		Store:    store,
		Logger:   zap.NewNop(),
	}, prompt.NewCompositor(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestGenerateDefaultsAndHistory(t *testing.T) {
	provider := &fakeProvider{}
	s := newTestStudio(t, provider, nil)

	err := s.Generate(context.Background(), GenerateParams{Count: 2})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(provider.generates) != 2 {
		t.Fatalf("provider called %d times, want 2", len(provider.generates))
	}
	for _, req := range provider.generates {
		if !strings.Contains(req.Prompt, core.DefaultDescription) {
			t.Errorf("prompt %q missing the default description", req.Prompt)
		}
		if req.NegativePrompt != core.DefaultNegativePrompt {
			t.Errorf("negative prompt not defaulted: %q", req.NegativePrompt)
		}
		if req.AspectRatio != genimg.AspectSquare {
			t.Errorf("aspect ratio = %q, want square default", req.AspectRatio)
		}
		if req.Seed != nil {
			t.Error("seed should be nil when blank")
		}
	}

	items := s.GenerationHistory()
	if len(items) != 2 {
		t.Fatalf("history has %d items, want 2", len(items))
	}
}

func TestGenerateWithStyleAndSeed(t *testing.T) {
	provider := &fakeProvider{}
	s := newTestStudio(t, provider, nil)

	err := s.Generate(context.Background(), GenerateParams{
		Description: "a red fox",
		StyleName:   "Realistic images",
		Seed:        "42",
		Count:       1,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	req := provider.generates[0]
	if !strings.Contains(req.Prompt, "a red fox") {
		t.Errorf("prompt %q missing the description", req.Prompt)
	}
	if !strings.Contains(req.Prompt, "high quality image") {
		t.Errorf("prompt %q missing the style template text", req.Prompt)
	}
	if req.NegativePrompt == core.DefaultNegativePrompt {
		t.Error("style negative template should override the default negative prompt")
	}
	if req.Seed == nil || *req.Seed != 42 {
		t.Errorf("seed = %v, want 42", req.Seed)
	}
}

func TestGenerateRejectsUnknownStyle(t *testing.T) {
	s := newTestStudio(t, &fakeProvider{}, nil)

	err := s.Generate(context.Background(), GenerateParams{StyleName: "Nonexistent", Count: 1})
	if !genimg.IsValidation(err) {
		t.Errorf("Generate = %v, want validation error", err)
	}
}

func TestGenerateRejectsBadSeed(t *testing.T) {
	s := newTestStudio(t, &fakeProvider{}, nil)

	for _, seed := range []string{"abc", "-1", "4294967296"} {
		err := s.Generate(context.Background(), GenerateParams{Seed: seed, Count: 1})
		if !genimg.IsValidation(err) {
			t.Errorf("Generate(seed=%q) = %v, want validation error", seed, err)
		}
	}
}

func TestEditRequiresStagedImages(t *testing.T) {
	s := newTestStudio(t, &fakeProvider{}, nil)

	err := s.Edit(context.Background(), EditParams{Prompt: "make it blue", Count: 1})
	if !genimg.IsValidation(err) {
		t.Errorf("Edit without staged images = %v, want validation error", err)
	}
}

func TestEditImageRefValidationBeforeRemoteCall(t *testing.T) {
	provider := &fakeProvider{}
	s := newTestStudio(t, provider, nil)

	err := s.Edit(context.Background(), EditParams{Prompt: "blend @img1 with water", Count: 1})
	if !genimg.IsValidation(err) {
		t.Fatalf("Edit = %v, want validation error", err)
	}
	if len(provider.edits) != 0 {
		t.Error("provider was called despite failed validation")
	}
}

func TestEditSplicesStyleReference(t *testing.T) {
	provider := &fakeProvider{}
	s := newTestStudio(t, provider, nil)

	if _, err := s.ImportImage(testPNG(8, 8), "image/png"); err != nil {
		t.Fatalf("ImportImage: %v", err)
	}

	err := s.Edit(context.Background(), EditParams{
		Prompt:    "a castle, @style, at dusk",
		StyleName: "Gold",
		Count:     1,
	})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}

	req := provider.edits[0]
	if strings.Contains(req.Prompt, "@style") {
		t.Errorf("@style token survived splicing: %q", req.Prompt)
	}
	if !strings.Contains(req.Prompt, "(gold:1.5)") {
		t.Errorf("style fragment missing from prompt: %q", req.Prompt)
	}
}

func TestEditOutpaintPadsSingleSource(t *testing.T) {
	provider := &fakeProvider{}
	s := newTestStudio(t, provider, nil)

	if _, err := s.ImportImage(testPNG(8, 8), "image/png"); err != nil {
		t.Fatalf("ImportImage: %v", err)
	}

	err := s.Edit(context.Background(), EditParams{
		Prompt:      "extend the scenery",
		AspectRatio: genimg.AspectWidescreen,
		Count:       1,
	})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}

	src := provider.edits[0].Sources[0]
	img, _, err := image.Decode(bytes.NewReader(src.Data))
	if err != nil {
		t.Fatalf("decoding padded source: %v", err)
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w <= 8 || h <= 8 {
		t.Errorf("source was not padded onto an outpaint canvas: %dx%d", w, h)
	}
	ratio := float64(w) / float64(h)
	if ratio < 1.7 || ratio > 1.85 {
		t.Errorf("padded canvas ratio = %.3f, want ~16:9", ratio)
	}
}

func TestEditSourceAspectSkipsPadding(t *testing.T) {
	provider := &fakeProvider{}
	s := newTestStudio(t, provider, nil)

	imported, err := s.ImportImage(testPNG(8, 8), "image/png")
	if err != nil {
		t.Fatalf("ImportImage: %v", err)
	}

	if err := s.Edit(context.Background(), EditParams{Prompt: "make it warmer", Count: 1}); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	src := provider.edits[0].Sources[0]
	if !bytes.Equal(src.Data, imported.Data) {
		t.Error("source was modified despite aspect \"source\"")
	}
}

func TestGenerateDiscardsResultAfterStop(t *testing.T) {
	provider := &fakeProvider{}
	s := newTestStudio(t, provider, nil)

	// Stop lands while the provider call is in flight; the returned image
	// must not reach the history.
	provider.genHook = func() { s.Session().Stop() }

	err := s.Generate(context.Background(), GenerateParams{Count: 2})
	if !errors.Is(err, pipeline.ErrStopped) {
		t.Fatalf("Generate = %v, want ErrStopped", err)
	}
	if got := len(s.GenerationHistory()); got != 0 {
		t.Errorf("history has %d items, want 0 (result after stop discarded)", got)
	}
}

func TestStageForEditFromHistory(t *testing.T) {
	s := newTestStudio(t, &fakeProvider{}, nil)

	if err := s.Generate(context.Background(), GenerateParams{Count: 1}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	generated := s.GenerationHistory()[0]

	if err := s.StageForEdit(generated.ID); err != nil {
		t.Fatalf("StageForEdit: %v", err)
	}
	staged := s.Staged()
	if len(staged) != 1 || staged[0].ID != generated.ID {
		t.Error("generated image was not staged")
	}

	s.Unstage(generated.ID)
	if len(s.Staged()) != 0 {
		t.Error("Unstage did not remove the image")
	}
}

func TestRestoreHistories(t *testing.T) {
	store := newMemStore()
	provider := &fakeProvider{}

	first := newTestStudio(t, provider, store)
	if err := first.Generate(context.Background(), GenerateParams{Count: 2}); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	second := newTestStudio(t, provider, store)
	if err := second.RestoreHistories(context.Background()); err != nil {
		t.Fatalf("RestoreHistories: %v", err)
	}
	if got := len(second.GenerationHistory()); got != 2 {
		t.Errorf("restored %d generation items, want 2", got)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	store := newMemStore()
	s := newTestStudio(t, &fakeProvider{}, store)
	ctx := context.Background()

	want := Settings{
		Description:   "a lighthouse at dawn",
		StyleName:     "Realistic images",
		Style2Name:    "Gold",
		ColorKey:      "teal",
		ExtraColorKey: "warm",
		GuidanceLevel: 9,
		AspectRatio:   genimg.AspectWidescreen,
	}
	if err := s.SaveSettings(ctx, want); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	got, err := s.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if got != want {
		t.Errorf("settings round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestLoadSettingsDefaultsWithoutStore(t *testing.T) {
	s := newTestStudio(t, &fakeProvider{}, nil)

	got, err := s.LoadSettings(context.Background())
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if got != DefaultSettings() {
		t.Errorf("LoadSettings = %+v, want defaults", got)
	}
}

func TestElaborateDefaultsBlankDescription(t *testing.T) {
	s := newTestStudio(t, &fakeProvider{}, nil)

	out, err := s.Elaborate(context.Background(), "  ")
	if err != nil {
		t.Fatalf("Elaborate: %v", err)
	}
	if !strings.Contains(out, core.DefaultDescription) {
		t.Errorf("Elaborate output %q did not use the default description", out)
	}
}

func TestParseSeed(t *testing.T) {
	tests := []struct {
		in      string
		want    *uint32
		wantErr bool
	}{
		{"", nil, false},
		{"  ", nil, false},
		{"0", ptr(uint32(0)), false},
		{"42", ptr(uint32(42)), false},
		{"4294967295", ptr(uint32(4294967295)), false},
		{"4294967296", nil, true},
		{"-1", nil, true},
		{"abc", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSeed(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseSeed(%q) succeeded, want error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSeed(%q): %v", tt.in, err)
			}
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("ParseSeed(%q) = %v, want %v", tt.in, got, tt.want)
			}
			if got != nil && *got != *tt.want {
				t.Errorf("ParseSeed(%q) = %d, want %d", tt.in, *got, *tt.want)
			}
		})
	}
}

func ptr(v uint32) *uint32 { return &v }
