package config

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/gfapi/pkg/native/local"
	"github.com/marmos91/gfapi/pkg/native/simvol"
)

func TestCreateDriver_Gfapi(t *testing.T) {
	driver, err := CreateDriver(context.Background(), &DriverConfig{Type: "gfapi"})
	if err != nil {
		t.Fatalf("Failed to create gfapi driver: %v", err)
	}
	if driver.Name() != "gfapi" {
		t.Errorf("Expected driver name 'gfapi', got %q", driver.Name())
	}
}

func TestCreateDriver_SimMemory(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Driver.Type = "sim"

	driver, err := CreateDriver(context.Background(), &cfg.Driver)
	if err != nil {
		t.Fatalf("Failed to create sim driver: %v", err)
	}
	if _, ok := driver.(*simvol.Driver); !ok {
		t.Fatalf("Expected *simvol.Driver, got %T", driver)
	}
	if err := driver.(io.Closer).Close(); err != nil {
		t.Errorf("Failed to close driver: %v", err)
	}
}

func TestCreateDriver_SimBadger(t *testing.T) {
	cfg := &DriverConfig{
		Type: "sim",
		Sim: map[string]any{
			"metadata_store": "badger",
			"badger": map[string]any{
				"db_path": filepath.Join(t.TempDir(), "meta"),
			},
		},
	}

	driver, err := CreateDriver(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create sim driver with badger: %v", err)
	}
	if err := driver.(io.Closer).Close(); err != nil {
		t.Errorf("Failed to close driver: %v", err)
	}
}

func TestCreateDriver_SimFS(t *testing.T) {
	cfg := &DriverConfig{
		Type: "sim",
		Sim: map[string]any{
			"content_store": "fs",
			"fs": map[string]any{
				"base_path": filepath.Join(t.TempDir(), "content"),
			},
		},
	}

	driver, err := CreateDriver(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create sim driver with fs content: %v", err)
	}
	if err := driver.(io.Closer).Close(); err != nil {
		t.Errorf("Failed to close driver: %v", err)
	}

	cfg.Sim["fs"] = map[string]any{}
	if _, err := CreateDriver(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "base_path is required") {
		t.Errorf("Expected base_path error, got %v", err)
	}
}

func TestCreateDriver_SimS3MissingBucket(t *testing.T) {
	cfg := &DriverConfig{
		Type: "sim",
		Sim: map[string]any{
			"content_store": "s3",
			"s3":            map[string]any{"region": "us-east-1"},
		},
	}

	_, err := CreateDriver(context.Background(), cfg)
	if err == nil {
		t.Fatal("Expected error for missing bucket")
	}
	if !strings.Contains(err.Error(), "bucket is required") {
		t.Errorf("Expected 'bucket is required' error, got: %v", err)
	}
}

func TestCreateDriver_Local(t *testing.T) {
	cfg := &DriverConfig{
		Type:  "local",
		Local: map[string]any{"root": t.TempDir()},
	}

	driver, err := CreateDriver(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create local driver: %v", err)
	}
	if _, ok := driver.(*local.Driver); !ok {
		t.Errorf("Expected *local.Driver, got %T", driver)
	}
}

func TestCreateDriver_LocalMissingRoot(t *testing.T) {
	_, err := CreateDriver(context.Background(), &DriverConfig{Type: "local"})
	if err == nil {
		t.Fatal("Expected error for missing root")
	}
	if !strings.Contains(err.Error(), "root is required") {
		t.Errorf("Expected 'root is required' error, got: %v", err)
	}
}

func TestCreateDriver_Unknown(t *testing.T) {
	_, err := CreateDriver(context.Background(), &DriverConfig{Type: "nfs"})
	if err == nil {
		t.Fatal("Expected error for unknown driver type")
	}
	if !strings.Contains(err.Error(), "unknown driver type") {
		t.Errorf("Expected 'unknown driver type' error, got: %v", err)
	}
}

func TestCreateDriver_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := GetDefaultConfig()
	cfg.Driver.Type = "sim"
	if _, err := CreateDriver(ctx, &cfg.Driver); err == nil {
		t.Fatal("Expected error for cancelled context")
	}
}

func TestDecodeSimOptions_BadType(t *testing.T) {
	_, err := decodeSimOptions(map[string]any{"uid": "not-a-number"})
	if err == nil {
		t.Fatal("Expected decode error for non-numeric uid")
	}
}
