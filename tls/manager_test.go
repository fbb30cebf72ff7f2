package tls

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewManager(t *testing.T) {
	tmpDir := t.TempDir()
	mgr := NewManager(tmpDir)

	expectedTLSDir := filepath.Join(tmpDir, "tls")
	if mgr.tlsDir != expectedTLSDir {
		t.Errorf("tlsDir = %q, want %q", mgr.tlsDir, expectedTLSDir)
	}
	if want := filepath.Join(expectedTLSDir, "server.crt"); mgr.CertFile() != want {
		t.Errorf("CertFile = %q, want %q", mgr.CertFile(), want)
	}
	if want := filepath.Join(expectedTLSDir, "server.key"); mgr.KeyFile() != want {
		t.Errorf("KeyFile = %q, want %q", mgr.KeyFile(), want)
	}
	if want := filepath.Join(tmpDir, "ca", "rootCA.pem"); mgr.caCertFile != want {
		t.Errorf("caCertFile = %q, want %q", mgr.caCertFile, want)
	}
}

func TestHostsChanged(t *testing.T) {
	tmpDir := t.TempDir()
	mgr := NewManager(tmpDir)
	os.MkdirAll(mgr.tlsDir, 0700)

	// No cached hosts yet.
	if !mgr.hostsChanged([]string{"localhost"}) {
		t.Error("Expected hostsChanged=true when no cached hosts exist")
	}

	if err := mgr.cacheHosts([]string{"localhost", "127.0.0.1"}); err != nil {
		t.Fatalf("cacheHosts failed: %v", err)
	}

	if mgr.hostsChanged([]string{"localhost", "127.0.0.1"}) {
		t.Error("Expected hostsChanged=false for same hosts")
	}
	if mgr.hostsChanged([]string{"127.0.0.1", "localhost"}) {
		t.Error("Expected hostsChanged=false for same hosts in different order")
	}
	if !mgr.hostsChanged([]string{"localhost", "127.0.0.1", "192.168.1.1"}) {
		t.Error("Expected hostsChanged=true for added host")
	}
	if !mgr.hostsChanged([]string{"localhost"}) {
		t.Error("Expected hostsChanged=true for fewer hosts")
	}
}

func TestCertsExist(t *testing.T) {
	tmpDir := t.TempDir()
	mgr := NewManager(tmpDir)
	os.MkdirAll(mgr.tlsDir, 0700)

	if mgr.certsExist() {
		t.Error("Expected certsExist=false when no certs")
	}

	os.WriteFile(mgr.certFile, []byte("cert"), 0600)
	if mgr.certsExist() {
		t.Error("Expected certsExist=false when only cert exists")
	}

	os.WriteFile(mgr.keyFile, []byte("key"), 0600)
	if !mgr.certsExist() {
		t.Error("Expected certsExist=true when both files exist")
	}
}
