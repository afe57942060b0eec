// Package hooks provides hook utilities for threadwatch.
package hooks

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetWorkerPort(t *testing.T) {
	// Default port
	port := GetWorkerPort()
	assert.Equal(t, DefaultWorkerPort, port)

	// Environment override
	t.Setenv("THREADWATCH_PORT", "12345")
	port = GetWorkerPort()
	assert.Equal(t, 12345, port)

	// Invalid override falls back to default
	t.Setenv("THREADWATCH_PORT", "invalid")
	port = GetWorkerPort()
	assert.Equal(t, DefaultWorkerPort, port)
}

// serverPort extracts the random port a test server landed on.
func serverPort(t *testing.T, server *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return port
}

func TestIsWorkerRunning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" {
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	assert.True(t, IsWorkerRunning(serverPort(t, server)))
	assert.False(t, IsWorkerRunning(1)) // Nothing listens there
}

func TestIsPortInUse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	assert.True(t, IsPortInUse(serverPort(t, server)))
	assert.False(t, IsPortInUse(1))
}

func TestGetWorkerVersion(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse func(w http.ResponseWriter, r *http.Request)
		expectedResult string
	}{
		{
			name: "returns version from server",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/api/version" {
					json.NewEncoder(w).Encode(map[string]string{"version": "1.2.3"})
				}
			},
			expectedResult: "1.2.3",
		},
		{
			name: "returns empty on 404",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			expectedResult: "",
		},
		{
			name: "returns empty on invalid JSON",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
			expectedResult: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(tt.serverResponse))
			defer server.Close()

			assert.Equal(t, tt.expectedResult, GetWorkerVersion(serverPort(t, server)))
		})
	}
}

func TestPOST(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]bool{"accepted": true})
	}))
	defer server.Close()

	body, err := POST(serverPort(t, server), "/api/notifications/hook", map[string]string{
		"type":       "tool_use",
		"project_id": "p1",
	})
	require.NoError(t, err)
	assert.Equal(t, "/api/notifications/hook", gotPath)
	assert.Equal(t, "tool_use", gotBody["type"])
	assert.Contains(t, string(body), "accepted")
}

func TestPOST_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "bad payload"})
	}))
	defer server.Close()

	_, err := POST(serverPort(t, server), "/api/notifications/hook", map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestProjectIDWithName(t *testing.T) {
	tests := []struct {
		cwd    string
		prefix string
	}{
		{cwd: "/Users/test/projects/my-project", prefix: "my-project_"},
		{cwd: "/tmp", prefix: "tmp_"},
	}

	for _, tt := range tests {
		t.Run(tt.cwd, func(t *testing.T) {
			result := ProjectIDWithName(tt.cwd)
			assert.True(t, strings.HasPrefix(result, tt.prefix), "got %q", result)
			// 6 hex chars after the underscore
			assert.Len(t, result, len(tt.prefix)+6)
		})
	}
}

func TestProjectIDWithName_Stable(t *testing.T) {
	a := ProjectIDWithName("/home/user/work")
	b := ProjectIDWithName("/home/user/work")
	assert.Equal(t, a, b)

	other := ProjectIDWithName("/home/user/other")
	assert.NotEqual(t, a, other)
}

func TestKillProcessOnPort_NoProcess(t *testing.T) {
	// No listener on the port: not an error.
	err := KillProcessOnPort(1)
	require.NoError(t, err)
}

func TestFindWorkerBinary(t *testing.T) {
	// Result depends on the environment; just verify it doesn't panic.
	result := findWorkerBinary()
	t.Logf("findWorkerBinary returned: %s", result)
}
