package hooks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultWorkerPort matches the worker's default listen port.
const DefaultWorkerPort = 41777

// Version is stamped at build time and used to detect a stale worker.
var Version = "dev"

// GetWorkerPort returns the worker port, honoring THREADWATCH_PORT.
func GetWorkerPort() int {
	if raw := os.Getenv("THREADWATCH_PORT"); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil && port > 0 {
			return port
		}
	}
	return DefaultWorkerPort
}

// IsWorkerRunning reports whether a healthy worker answers on the port.
func IsWorkerRunning(port int) bool {
	client := &http.Client{Timeout: 500 * time.Millisecond}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/api/health", port))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// IsPortInUse reports whether something, worker or not, holds the port.
func IsPortInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// GetWorkerVersion returns the running worker's version, or "" when it
// cannot be determined.
func GetWorkerVersion(port int) string {
	client := &http.Client{Timeout: 500 * time.Millisecond}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/api/version", port))
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ""
	}
	return body["version"]
}

// EnsureWorkerRunning checks for a live worker and starts one when missing.
// A worker running a different version is killed and replaced so hook and
// worker binaries never drift apart.
func EnsureWorkerRunning() (int, error) {
	port := GetWorkerPort()

	if IsWorkerRunning(port) {
		running := GetWorkerVersion(port)
		if running == "" || running == Version {
			return port, nil
		}
		if err := KillProcessOnPort(port); err != nil {
			return 0, fmt.Errorf("stop stale worker (version %s): %w", running, err)
		}
	} else if IsPortInUse(port) {
		return 0, fmt.Errorf("port %d is in use by something that is not a threadwatch worker", port)
	}

	binary := findWorkerBinary()
	if binary == "" {
		return 0, fmt.Errorf("threadwatch binary not found in PATH or install locations")
	}

	cmd := exec.Command(binary)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start worker: %w", err)
	}
	// Detach; the worker outlives the hook process.
	if err := cmd.Process.Release(); err != nil {
		return 0, fmt.Errorf("release worker process: %w", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if IsWorkerRunning(port) {
			return port, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return 0, fmt.Errorf("worker did not become healthy on port %d", port)
}

// KillProcessOnPort terminates whatever listens on the port. A port with no
// listener is not an error.
func KillProcessOnPort(port int) error {
	out, err := exec.Command("lsof", "-ti", fmt.Sprintf(":%d", port)).Output()
	if err != nil || len(bytes.TrimSpace(out)) == 0 {
		return nil
	}

	for _, pid := range strings.Fields(string(out)) {
		_ = exec.Command("kill", pid).Run()
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !IsPortInUse(port) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("process on port %d did not exit", port)
}

// findWorkerBinary locates the threadwatch worker binary: next to the hook
// binary first, then the install dir, then PATH.
func findWorkerBinary() string {
	if self, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(self), "threadwatch")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, ".threadwatch", "bin", "threadwatch")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}

	if path, err := exec.LookPath("threadwatch"); err == nil {
		return path
	}
	return ""
}

// POST sends a JSON payload to the worker and returns the response body.
func POST(port int, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(
		fmt.Sprintf("http://127.0.0.1:%d%s", port, path),
		"application/json",
		bytes.NewReader(data),
	)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return body, fmt.Errorf("worker returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
