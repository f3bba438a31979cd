package builder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/arcompile/internal/config"
	"github.com/oshokin/arcompile/internal/domain/sketch"
	"github.com/oshokin/arcompile/internal/logger"
	"github.com/oshokin/arcompile/internal/service/common"
)

// secondsPerLine feeds the rough compile time estimate.
const secondsPerLine = 0.02

// Submitter is the part of the build service client the builder needs.
type Submitter interface {
	SubmitBuild(ctx context.Context, req *common.BuildRequest) (*common.BuildResponse, error)
}

// Request describes what to build.
type Request struct {
	// Board selects the FQBN and whether partition schemes apply.
	Board sketch.Board
	// Scheme is the scheme of the first attempt.
	Scheme sketch.PartitionScheme
	// Files are the sources to upload, relative to the sketch root.
	Files []string
	// Lines is used for the compile time estimate.
	Lines int
}

// Result is a successful build.
type Result struct {
	*common.BuildResponse

	// Scheme is the partition scheme that produced the artifacts.
	Scheme sketch.PartitionScheme
	// Attempts counts the compile requests sent.
	Attempts int
}

// ErrSizeExceeded marks a compile rejected because the image is larger than its partition.
var ErrSizeExceeded = errors.New("image exceeds partition capacity")

// CompileError is a compile the server refused. It carries the server message and compiler output.
type CompileError struct {
	Scheme       sketch.PartitionScheme
	Message      string
	Output       string
	SizeExceeded bool
	Err          error
}

// Error implements error.
func (e *CompileError) Error() string {
	return fmt.Sprintf("remote compile failed (%s partitions): %s", e.Scheme, e.Message)
}

// Unwrap exposes the API error and ErrSizeExceeded when applicable.
func (e *CompileError) Unwrap() []error {
	if e.SizeExceeded {
		return []error{e.Err, ErrSizeExceeded}
	}

	return []error{e.Err}
}

// Builder runs the compile with its single partition fallback.
type Builder struct {
	client  Submitter
	root    string
	logPath string
	newID   func() string
}

// New creates a builder for the sketch in root. logPath receives the compiler
// output of the successful attempt; empty disables it.
func New(client Submitter, root, logPath string) *Builder {
	return &Builder{
		client:  client,
		root:    root,
		logPath: logPath,
		newID:   uuid.NewString,
	}
}

// Build compiles the sketch remotely. A size-exceeded answer under the default
// scheme is retried once with min_spiffs, unless the FQBN already pins a
// partition scheme; nothing else is retried.
func (b *Builder) Build(ctx context.Context, req *Request) (*Result, error) {
	ctx = logger.WithName(ctx, "builder")

	scheme := req.Scheme
	if scheme == "" || !req.Board.SupportsPartitions() {
		scheme = sketch.PartitionDefault
	}

	libs, err := ReadLibraries(b.root)
	if err != nil {
		return nil, err
	}

	estimate := time.Duration(float64(req.Lines) * secondsPerLine * float64(time.Second))
	logger.InfoKV(ctx, "Starting remote compile",
		"fqbn", req.Board.FQBNWithScheme(scheme), "files", len(req.Files), "estimate", estimate.Round(100*time.Millisecond))

	resp, err := b.attempt(ctx, req, scheme, libs)
	attempts := 1

	if err != nil && errors.Is(err, ErrSizeExceeded) &&
		scheme == sketch.PartitionDefault && req.Board.SupportsPartitions() && !req.Board.HasPartitionOption() {
		logger.WarnKV(ctx, "Image does not fit the default partitions, retrying with min_spiffs", "error", err)

		scheme = sketch.PartitionMinSPIFFS
		resp, err = b.attempt(ctx, req, scheme, libs)
		attempts++
	}

	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Compile succeeded",
		"build_id", resp.BuildID, "partition_scheme", scheme, "sketch_size", resp.SketchSize, "max_size", resp.MaxSize)

	if err = b.writeLog(resp.Output); err != nil {
		logger.WarnKV(ctx, "Unable to write compile log", "path", b.logPath, "error", err)
	}

	return &Result{BuildResponse: resp, Scheme: scheme, Attempts: attempts}, nil
}

// attempt sends one compile request.
func (b *Builder) attempt(
	ctx context.Context,
	req *Request,
	scheme sketch.PartitionScheme,
	libs []string,
) (*common.BuildResponse, error) {
	var body bytes.Buffer
	if err := Pack(ctx, b.root, req.Files, &body); err != nil {
		return nil, fmt.Errorf("pack sketch: %w", err)
	}

	requestID := b.newID()
	logger.DebugKV(ctx, "Uploading sketch", "request_id", requestID, "bytes", body.Len(), "partition_scheme", scheme)

	resp, err := b.client.SubmitBuild(ctx, &common.BuildRequest{
		FQBN:      req.Board.FQBNWithScheme(scheme),
		Libraries: libs,
		RequestID: requestID,
		Body:      &body,
	})
	if err == nil {
		return resp, nil
	}

	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return nil, err
	}

	return nil, &CompileError{
		Scheme:       scheme,
		Message:      apiErr.Error(),
		Output:       apiErr.Output,
		SizeExceeded: apiErr.IsSizeExceeded(),
		Err:          apiErr,
	}
}

func (b *Builder) writeLog(output string) error {
	if b.logPath == "" {
		return nil
	}

	return os.WriteFile(b.logPath, []byte(output), config.DefaultFilePermissions)
}
