package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestKV(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "kv-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			t.Logf("Error removing temp dir: %v", err)
		}
	}()

	dbPath := filepath.Join(tmpDir, "test.db")
	kv, err := OpenKV(dbPath)
	if err != nil {
		t.Fatalf("Failed to open KV: %v", err)
	}

	testKVBasic(t, kv)
	testKVMissing(t, kv)
	testKVPrefix(t, kv)

	if err := kv.Close(); err != nil {
		t.Fatalf("Failed to close KV: %v", err)
	}

	testKVPersistence(t, dbPath)
}

func testKVBasic(t *testing.T, kv *KV) {
	val := []byte(`{"longitude":30.5,"latitude":50.4}`)
	if err := kv.Put("geocode:kyiv", val, 0); err != nil {
		t.Errorf("Put failed: %v", err)
	}
	res, err := kv.Get("geocode:kyiv")
	if err != nil {
		t.Errorf("Get failed: %v", err)
	}
	if !bytes.Equal(res, val) {
		t.Errorf("Get mismatch: got %s, want %s", res, val)
	}
}

func testKVMissing(t *testing.T, kv *KV) {
	res, err := kv.Get("geocode:atlantis")
	if err != nil || res != nil {
		t.Errorf("Expected (nil, nil) for missing key, got (%s, %v)", res, err)
	}

	if err := kv.Put("geocode:gone", []byte("x"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := kv.Delete("geocode:gone"); err != nil {
		t.Errorf("Delete failed: %v", err)
	}
	if res, _ := kv.Get("geocode:gone"); res != nil {
		t.Errorf("Expected deleted key to be missing, got %s", res)
	}
}

func testKVPrefix(t *testing.T, kv *KV) {
	if err := kv.Put("other:1", []byte("1"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	var keys []string
	err := kv.ForEach("geocode:", func(k, v []byte) error {
		keys = append(keys, string(k))
		return nil
	})
	if err != nil {
		t.Errorf("ForEach failed: %v", err)
	}
	if len(keys) != 1 || keys[0] != "geocode:kyiv" {
		t.Errorf("Unexpected keys %v", keys)
	}
}

func testKVPersistence(t *testing.T, dbPath string) {
	kv, err := OpenKV(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen KV: %v", err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			t.Logf("Error closing KV: %v", err)
		}
	}()

	res, err := kv.Get("geocode:kyiv")
	if err != nil {
		t.Errorf("Get after reopen failed: %v", err)
	}
	if res == nil {
		t.Errorf("Expected non-nil result after reopen")
	}
}

func TestKVExpiry(t *testing.T) {
	kv, err := OpenInMemoryKV()
	if err != nil {
		t.Fatalf("Failed to open KV: %v", err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			t.Logf("Error closing KV: %v", err)
		}
	}()

	if err := kv.Put("short", []byte("v"), time.Second); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if res, _ := kv.Get("short"); res == nil {
		t.Fatal("Expected entry before expiry")
	}
	// badger expiry has one-second resolution.
	time.Sleep(2100 * time.Millisecond)
	if res, _ := kv.Get("short"); res != nil {
		t.Errorf("Expected entry to expire, got %s", res)
	}
}
