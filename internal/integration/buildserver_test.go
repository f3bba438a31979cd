package integration

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"

	"github.com/oshokin/arcompile/internal/service/common"
)

// buildCall is one compile request received by the fake build service.
type buildCall struct {
	fqbn      string
	requestID string
	libraries string
	files     map[string]string
}

// buildServer imitates the remote build service.
type buildServer struct {
	*httptest.Server

	mu    sync.Mutex
	calls []buildCall
	// rejectDefault answers size_exceeded unless min_spiffs is requested.
	rejectDefault bool
	// rejectAll answers size_exceeded for every request.
	rejectAll bool
	artifacts map[string][]byte
}

// esp32Artifacts is what a classic ESP32 build of the "blink" sketch returns.
func esp32Artifacts() map[string][]byte {
	return map[string][]byte{
		"blink.ino.bootloader.bin": []byte("bootloader"),
		"blink.ino.partitions.bin": []byte("partitions"),
		"boot_app0.bin":            []byte("boot_app0"),
		"blink.ino.bin":            []byte("application"),
		"blink.ino.merged.bin":     []byte("merged"),
	}
}

func startBuildServer(t *testing.T, configure func(*buildServer)) *buildServer {
	t.Helper()

	s := &buildServer{artifacts: esp32Artifacts()}
	if configure != nil {
		configure(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/builds", func(w http.ResponseWriter, r *http.Request) {
		s.handleBuild(t, w, r)
	})
	mux.HandleFunc("GET /api/v1/builds/{id}/artifacts/{name}", func(w http.ResponseWriter, r *http.Request) {
		data, ok := s.artifacts[r.PathValue("name")]
		if !ok {
			http.NotFound(w, r)
			return
		}

		_, _ = w.Write(data)
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)

	return s
}

func (s *buildServer) handleBuild(t *testing.T, w http.ResponseWriter, r *http.Request) {
	files, err := unpack(r.Body)
	assert.NoError(t, err)

	call := buildCall{
		fqbn:      r.URL.Query().Get("fqbn"),
		requestID: r.Header.Get(common.HeaderRequestID),
		libraries: r.Header.Get(common.HeaderLibraries),
		files:     files,
	}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	number := len(s.calls)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if s.rejectAll || (s.rejectDefault && !strings.Contains(call.fqbn, "PartitionScheme=min_spiffs")) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code":   common.CodeSizeExceeded,
			"error":  "Sketch too big",
			"output": "text section exceeds available space in board",
		})

		return
	}

	resp := common.BuildResponse{
		BuildID:    fmt.Sprintf("build-%d", number),
		FQBN:       call.fqbn,
		Output:     "Sketch uses 1024 bytes",
		SketchSize: 1024,
		MaxSize:    1310720,
	}

	for name, data := range s.artifacts {
		sum := sha256.Sum256(data)
		resp.Artifacts = append(resp.Artifacts, common.Artifact{
			Name:   name,
			Size:   int64(len(data)),
			SHA256: hex.EncodeToString(sum[:]),
		})
	}

	_ = json.NewEncoder(w).Encode(&resp)
}

func (s *buildServer) Calls() []buildCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]buildCall(nil), s.calls...)
}

// unpack reads a tar+zstd upload into name -> contents.
func unpack(body io.Reader) (map[string]string, error) {
	decoder, err := zstd.NewReader(body)
	if err != nil {
		return nil, err
	}

	defer decoder.Close()

	files := make(map[string]string)
	tr := tar.NewReader(decoder)

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return files, nil
		}

		if err != nil {
			return nil, err
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}

		files[header.Name] = string(data)
	}
}
