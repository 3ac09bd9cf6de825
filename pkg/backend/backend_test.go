package backend

import (
	"context"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/Sternrassler/proxy-cache/pkg/cache"
)

// backendFactory returns a fresh backend and a function advancing its clock.
type backendFactory func(t *testing.T) (cache.Backend, func(time.Duration))

// runBackendTests runs the behaviour every cache.Backend must provide.
func runBackendTests(t *testing.T, newBackend backendFactory) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		b, _ := newBackend(t)

		data, found, err := b.Get(ctx, "missing")
		if err != nil || found || data != nil {
			t.Errorf("Get() = %q, %v, %v, want nil, false, nil", data, found, err)
		}
		if has, err := b.Has(ctx, "missing"); err != nil || has {
			t.Errorf("Has() = %v, %v, want false, nil", has, err)
		}
	})

	t.Run("set get has", func(t *testing.T) {
		b, _ := newBackend(t)

		if err := b.Set(ctx, "entry1", []byte("payload"), nil, time.Minute); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		data, found, err := b.Get(ctx, "entry1")
		if err != nil || !found || string(data) != "payload" {
			t.Errorf("Get() = %q, %v, %v, want payload, true, nil", data, found, err)
		}
		if has, err := b.Has(ctx, "entry1"); err != nil || !has {
			t.Errorf("Has() = %v, %v, want true, nil", has, err)
		}
	})

	t.Run("overwrite replaces data and tags", func(t *testing.T) {
		b, _ := newBackend(t)

		if err := b.Set(ctx, "entry1", []byte("v1"), []string{"old"}, 0); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if err := b.Set(ctx, "entry1", []byte("v2"), []string{"new"}, 0); err != nil {
			t.Fatalf("Set() error = %v", err)
		}

		data, _, _ := b.Get(ctx, "entry1")
		if string(data) != "v2" {
			t.Errorf("Get() = %q, want v2", data)
		}
		if ids, _ := b.FindIdentifiersByTag(ctx, "old"); len(ids) != 0 {
			t.Errorf("FindIdentifiersByTag(old) = %v, want empty", ids)
		}
		if ids, _ := b.FindIdentifiersByTag(ctx, "new"); !reflect.DeepEqual(ids, []string{"entry1"}) {
			t.Errorf("FindIdentifiersByTag(new) = %v, want [entry1]", ids)
		}
	})

	t.Run("remove", func(t *testing.T) {
		b, _ := newBackend(t)

		if err := b.Set(ctx, "entry1", []byte("v1"), []string{"tag"}, 0); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if err := b.Remove(ctx, "entry1"); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		if has, _ := b.Has(ctx, "entry1"); has {
			t.Error("entry still present after Remove")
		}
		if ids, _ := b.FindIdentifiersByTag(ctx, "tag"); len(ids) != 0 {
			t.Errorf("FindIdentifiersByTag() = %v, want empty", ids)
		}
		if err := b.Remove(ctx, "never-stored"); err != nil {
			t.Errorf("Remove() of missing entry error = %v", err)
		}
	})

	t.Run("find by tag", func(t *testing.T) {
		b, _ := newBackend(t)

		entries := map[string][]string{
			"b": {"products", "page"},
			"a": {"products"},
			"c": {"page"},
		}
		for id, tags := range entries {
			if err := b.Set(ctx, id, []byte(id), tags, 0); err != nil {
				t.Fatalf("Set(%s) error = %v", id, err)
			}
		}

		tests := []struct {
			tag  string
			want []string
		}{
			{"products", []string{"a", "b"}},
			{"page", []string{"b", "c"}},
			{"unknown", []string{}},
		}
		for _, tt := range tests {
			ids, err := b.FindIdentifiersByTag(ctx, tt.tag)
			if err != nil {
				t.Fatalf("FindIdentifiersByTag(%s) error = %v", tt.tag, err)
			}
			if len(ids) != len(tt.want) || (len(ids) > 0 && !reflect.DeepEqual(ids, tt.want)) {
				t.Errorf("FindIdentifiersByTag(%s) = %v, want %v", tt.tag, ids, tt.want)
			}
		}
	})

	t.Run("ttl expiry", func(t *testing.T) {
		b, advance := newBackend(t)

		if err := b.Set(ctx, "short", []byte("x"), []string{"tag"}, time.Second); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if err := b.Set(ctx, "forever", []byte("y"), []string{"tag"}, 0); err != nil {
			t.Fatalf("Set() error = %v", err)
		}

		advance(2 * time.Second)

		if _, found, _ := b.Get(ctx, "short"); found {
			t.Error("expired entry returned by Get")
		}
		if has, _ := b.Has(ctx, "short"); has {
			t.Error("expired entry reported by Has")
		}
		if _, found, _ := b.Get(ctx, "forever"); !found {
			t.Error("entry without ttl expired")
		}
		ids, err := b.FindIdentifiersByTag(ctx, "tag")
		if err != nil {
			t.Fatalf("FindIdentifiersByTag() error = %v", err)
		}
		if !reflect.DeepEqual(ids, []string{"forever"}) {
			t.Errorf("FindIdentifiersByTag() = %v, want [forever]", ids)
		}
	})

	t.Run("store round trip", func(t *testing.T) {
		b, _ := newBackend(t)
		store := cache.NewStore(b)

		resp := cache.NewResponse(http.StatusOK)
		resp.Header.Set("Content-Type", "text/plain")
		resp.Body = []byte("hello")

		if err := store.Set(ctx, "entry1", resp, []string{"greeting"}, time.Minute); err != nil {
			t.Fatalf("Store.Set() error = %v", err)
		}

		entries, err := store.GetByTag(ctx, "greeting")
		if err != nil {
			t.Fatalf("Store.GetByTag() error = %v", err)
		}
		got, ok := entries["entry1"]
		if !ok {
			t.Fatal("Store.GetByTag() missing entry1")
		}
		if string(got.Body) != "hello" || got.Header.Get("Content-Type") != "text/plain" {
			t.Errorf("entry = %d %v %q, want text/plain hello", got.StatusCode, got.Header, got.Body)
		}

		removed, err := store.InvalidateTag(ctx, "greeting")
		if err != nil || removed != 1 {
			t.Errorf("Store.InvalidateTag() = %d, %v, want 1, nil", removed, err)
		}
		if has, _ := store.Has(ctx, "entry1"); has {
			t.Error("entry still present after InvalidateTag")
		}
	})
}
