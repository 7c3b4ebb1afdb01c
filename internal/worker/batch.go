package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/bluebridge/internal/model"
)

// DraftValidator validates one generator draft stored on disk
type DraftValidator interface {
	ValidateFile(ctx context.Context, path string) (*model.QueryResponse, error)
}

// DraftJob validates a single draft file
type DraftJob struct {
	Index     int
	Path      string
	Validator DraftValidator
}

// Execute runs the validation
func (j *DraftJob) Execute(ctx context.Context) Result {
	resp, err := j.Validator.ValidateFile(ctx, j.Path)
	return &DraftResult{
		Index:    j.Index,
		Path:     j.Path,
		Response: resp,
		Error:    err,
	}
}

// DraftResult is the outcome of one draft validation
type DraftResult struct {
	Index    int
	Path     string
	Response *model.QueryResponse
	Error    error
}

// GetError returns the validation error, if any
func (r *DraftResult) GetError() error {
	return r.Error
}

// BatchProcessor validates many drafts concurrently
type BatchProcessor struct {
	validator   DraftValidator
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(validator DraftValidator, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		validator:   validator,
		concurrency: concurrency,
	}
}

// ProcessPaths validates every path and returns results in input order
func (b *BatchProcessor) ProcessPaths(ctx context.Context, paths []string) []*DraftResult {
	if len(paths) == 0 {
		return []*DraftResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	results := make([]*DraftResult, len(paths))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for res := range pool.Results() {
			dr := res.(*DraftResult)
			results[dr.Index] = dr
		}
	}()

	for i, path := range paths {
		if !pool.Submit(&DraftJob{Index: i, Path: path, Validator: b.validator}) {
			break
		}
	}
	pool.Close()
	<-done

	// jobs never run because ctx ended still get a result
	for i, res := range results {
		if res == nil {
			results[i] = &DraftResult{Index: i, Path: paths[i], Error: fmt.Errorf("not processed: %w", context.Cause(ctx))}
		}
	}
	return results
}

// ProcessList reads draft paths from a list file and validates them
func (b *BatchProcessor) ProcessList(ctx context.Context, listPath string) ([]*DraftResult, error) {
	paths, err := ReadPathsFromFile(listPath)
	if err != nil {
		return nil, fmt.Errorf("read paths: %w", err)
	}
	return b.ProcessPaths(ctx, paths), nil
}

// ReadPathsFromFile reads draft paths (one per line). Relative paths are
// resolved against the list file's directory.
func ReadPathsFromFile(listPath string) ([]string, error) {
	file, err := os.Open(listPath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	base := filepath.Dir(listPath)
	var paths []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(base, line)
		}
		if !seen[line] {
			seen[line] = true
			paths = append(paths, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return paths, nil
}
