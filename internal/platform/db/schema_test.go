package db

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/clinicq/clinicq/internal/apperr"
)

func TestNormalizeSchema_Valid(t *testing.T) {
	valid := []string{"clinic_42", "abc", "_private", "A1B2", "  padded  ", "tenant_abc_123"}
	for _, raw := range valid {
		schema, err := NormalizeSchema(raw)
		if err != nil {
			t.Errorf("NormalizeSchema(%q) error: %v", raw, err)
			continue
		}
		if schema != strings.TrimSpace(raw) {
			t.Errorf("NormalizeSchema(%q) = %q, expected trimmed input", raw, schema)
		}
	}
}

func TestNormalizeSchema_Invalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"too long", strings.Repeat("a", 64)},
		{"starts with digit", "1clinic"},
		{"hyphen", "clinic-42"},
		{"semicolon injection", "x; DROP SCHEMA public"},
		{"space inside", "clinic 42"},
		{"reserved lower", "public"},
		{"reserved mixed case", "Public"},
		{"reserved upper", "PUBLIC"},
		{"reserved catalog", "pg_catalog"},
		{"reserved info schema", "Information_Schema"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NormalizeSchema(tc.raw)
			if err == nil {
				t.Fatalf("NormalizeSchema(%q) expected error", tc.raw)
			}
			if !apperr.IsKind(err, apperr.KindValidation) {
				t.Errorf("NormalizeSchema(%q) expected validation error, got %v", tc.raw, err)
			}
		})
	}
}

func TestNormalizeSchema_MaxLengthBoundary(t *testing.T) {
	ok := strings.Repeat("a", 63)
	if _, err := NormalizeSchema(ok); err != nil {
		t.Errorf("63-char schema should be accepted: %v", err)
	}
}

type fakeDirectory struct {
	allowed map[string]bool
	err     error
	calls   int
}

func (f *fakeDirectory) IsRegistered(_ context.Context, schema string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.allowed[schema], nil
}

func TestAllowList_AllowsRegistered(t *testing.T) {
	dir := &fakeDirectory{allowed: map[string]bool{"clinic_42": true}}
	allow := NewAllowList(dir, time.Minute)

	if err := allow.Assert(context.Background(), "clinic_42"); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}

func TestAllowList_RejectsUnregistered(t *testing.T) {
	dir := &fakeDirectory{allowed: map[string]bool{}}
	allow := NewAllowList(dir, time.Minute)

	err := allow.Assert(context.Background(), "unknown")
	if err == nil {
		t.Fatal("expected unauthorized error")
	}
	if !apperr.IsKind(err, apperr.KindUnauthorized) {
		t.Errorf("expected unauthorized kind, got %v", err)
	}
}

func TestAllowList_CachesWithinTTL(t *testing.T) {
	dir := &fakeDirectory{allowed: map[string]bool{"clinic_42": true}}
	allow := NewAllowList(dir, time.Minute)

	for i := 0; i < 5; i++ {
		if err := allow.Assert(context.Background(), "clinic_42"); err != nil {
			t.Fatalf("assert %d: %v", i, err)
		}
	}
	if dir.calls != 1 {
		t.Errorf("expected 1 directory lookup, got %d", dir.calls)
	}
}

func TestAllowList_CachesNegativeResults(t *testing.T) {
	dir := &fakeDirectory{allowed: map[string]bool{}}
	allow := NewAllowList(dir, time.Minute)

	for i := 0; i < 3; i++ {
		_ = allow.Assert(context.Background(), "unknown")
	}
	if dir.calls != 1 {
		t.Errorf("expected 1 directory lookup for repeated denials, got %d", dir.calls)
	}
}

func TestAllowList_ExpiresAfterTTL(t *testing.T) {
	dir := &fakeDirectory{allowed: map[string]bool{"clinic_42": true}}
	allow := NewAllowList(dir, time.Minute)

	current := time.Now()
	allow.now = func() time.Time { return current }

	if err := allow.Assert(context.Background(), "clinic_42"); err != nil {
		t.Fatal(err)
	}

	// Revoke upstream; still cached.
	dir.allowed["clinic_42"] = false
	if err := allow.Assert(context.Background(), "clinic_42"); err != nil {
		t.Fatalf("expected cached allow within TTL, got %v", err)
	}

	// Past the TTL the revocation is observed.
	current = current.Add(2 * time.Minute)
	if err := allow.Assert(context.Background(), "clinic_42"); err == nil {
		t.Fatal("expected unauthorized after TTL expiry")
	}
	if dir.calls != 2 {
		t.Errorf("expected 2 directory lookups, got %d", dir.calls)
	}
}

func TestAllowList_InvalidateForcesRecheck(t *testing.T) {
	dir := &fakeDirectory{allowed: map[string]bool{"clinic_42": true}}
	allow := NewAllowList(dir, time.Hour)

	if err := allow.Assert(context.Background(), "clinic_42"); err != nil {
		t.Fatal(err)
	}

	dir.allowed["clinic_42"] = false
	allow.Invalidate("clinic_42")

	if err := allow.Assert(context.Background(), "clinic_42"); err == nil {
		t.Fatal("expected unauthorized after invalidation")
	}
}

func TestAllowList_LookupFailureIsInfra(t *testing.T) {
	dir := &fakeDirectory{err: context.DeadlineExceeded}
	allow := NewAllowList(dir, time.Minute)

	err := allow.Assert(context.Background(), "clinic_42")
	if !apperr.IsKind(err, apperr.KindInfra) {
		t.Errorf("expected infra error, got %v", err)
	}
}
