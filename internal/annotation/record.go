// Package annotation parses Label Studio export records: one JSON object per
// annotated task, as written by the project's target (export) storage.
package annotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ChoicesType is the result type produced by a single-choice classification control.
const ChoicesType = "choices"

// DefaultImagePrefix is the externally visible MinIO address Label Studio
// embeds in task image URLs.
const DefaultImagePrefix = "http://localhost:9000/"

var (
	// ErrMalformed is returned when the record is not a JSON object of the expected shape.
	ErrMalformed = errors.New("malformed annotation record")
	// ErrNoImage is returned when task.data.image is missing or empty.
	ErrNoImage = errors.New("record has no image reference")
	// ErrNoResults is returned when the record carries no annotation results.
	ErrNoResults = errors.New("record has no results")
	// ErrNoChoice is returned when no choices result yields a label.
	ErrNoChoice = errors.New("record has no chosen label")
	// ErrForeignImage is returned when an image reference cannot be mapped to a storage path.
	ErrForeignImage = errors.New("image reference is not in object storage")
)

// Record is a single exported annotation.
type Record struct {
	Task   Task     `json:"task"`
	Result []Result `json:"result"`
}

// Task is the subset of the annotated task the router needs.
type Task struct {
	ID   int64    `json:"id,omitempty"`
	Data TaskData `json:"data"`
}

// TaskData holds the task's input fields.
type TaskData struct {
	Image string `json:"image"`
}

// Result is one control's output within an annotation.
type Result struct {
	Type  string      `json:"type"`
	Value ResultValue `json:"value"`
}

// ResultValue holds the selected values of a result.
type ResultValue struct {
	Choices []string `json:"choices"`
}

// Parse decodes raw export JSON. Any decode failure wraps ErrMalformed.
func Parse(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &rec, nil
}

// Image returns the task's image reference.
func (r *Record) Image() string {
	return r.Task.Data.Image
}

// ChosenLabel returns the annotator's choice: the first value of the first
// result whose type is ChoicesType. Other result types are ignored.
func (r *Record) ChosenLabel() (string, error) {
	if r.Image() == "" {
		return "", ErrNoImage
	}
	if len(r.Result) == 0 {
		return "", ErrNoResults
	}
	for _, res := range r.Result {
		if res.Type != ChoicesType {
			continue
		}
		if len(res.Value.Choices) == 0 || res.Value.Choices[0] == "" {
			return "", ErrNoChoice
		}
		return res.Value.Choices[0], nil
	}
	return "", ErrNoChoice
}

// StoragePath maps an image reference to a "bucket/key" storage path by
// stripping prefix. References already written as s3:// URIs or bare
// storage paths are accepted as well.
func StoragePath(imageRef, prefix string) (string, error) {
	p := imageRef
	switch {
	case prefix != "" && strings.HasPrefix(p, prefix):
		p = strings.TrimPrefix(p, prefix)
	case strings.HasPrefix(p, "s3://"):
		p = strings.TrimPrefix(p, "s3://")
	case strings.Contains(p, "://"):
		return "", fmt.Errorf("%w: %s", ErrForeignImage, imageRef)
	}
	p = strings.TrimLeft(p, "/")
	if p == "" || !strings.Contains(p, "/") {
		return "", fmt.Errorf("%w: %s", ErrForeignImage, imageRef)
	}
	return p, nil
}

// Basename returns the final path segment of an image reference.
func Basename(imageRef string) string {
	if i := strings.LastIndex(imageRef, "/"); i >= 0 {
		return imageRef[i+1:]
	}
	return imageRef
}
