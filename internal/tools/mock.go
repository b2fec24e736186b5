package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MockFailModel makes MockAdapter report a provider failure for the job.
const MockFailModel = "mock-fail"

// MockAdapter simulates an asynchronous provider for local development. The
// job's ready time is encoded in the handle, so the adapter keeps no state.
type MockAdapter struct {
	Tool  string
	Delay time.Duration
	// Now is replaceable in tests.
	Now func() time.Time
}

func (m *MockAdapter) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *MockAdapter) Submit(ctx context.Context, model string, inputs map[string]any) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	ready := m.now().Add(m.Delay).UnixNano()
	id := fmt.Sprintf("%s.%d", uuid.NewString(), ready)
	if model == MockFailModel {
		id += ".fail"
	}
	return Handle{ID: id, Provider: "mock"}, nil
}

func (m *MockAdapter) Status(ctx context.Context, h Handle) (JobStatus, error) {
	parts := strings.Split(h.ID, ".")
	if len(parts) < 2 {
		return JobStatus{}, errUnknownHandle(h.ID)
	}
	ready, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return JobStatus{}, errUnknownHandle(h.ID)
	}
	if m.now().UnixNano() < ready {
		return JobStatus{State: JobRunning}, nil
	}
	if len(parts) > 2 && parts[2] == "fail" {
		return JobStatus{State: JobFailed, Reason: "mock provider failure"}, nil
	}
	if textTool(m.Tool) {
		return JobStatus{State: JobSucceeded, OutputText: fmt.Sprintf("mock %s output %s", m.Tool, parts[0])}, nil
	}
	return JobStatus{State: JobSucceeded, OutputURL: fmt.Sprintf("https://mock.mediaflow.local/%s/%s%s", m.Tool, parts[0], mockExt(m.Tool))}, nil
}

func textTool(tool string) bool {
	return tool == "transcription" || tool == "prompt" || tool == "document"
}

func mockExt(tool string) string {
	switch tool {
	case "video", "lipsync":
		return ".mp4"
	case "tts":
		return ".mp3"
	default:
		return ".png"
	}
}
