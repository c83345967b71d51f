package api

import (
	"fmt"

	"github.com/samcharles93/pocketlm/internal/artifact"
	"github.com/samcharles93/pocketlm/internal/device"
	"github.com/samcharles93/pocketlm/internal/generation"
	"github.com/samcharles93/pocketlm/internal/runtime"
)

// GenerateRequest is the body of POST /v1/generate. Unset sampling fields
// take the assistant's configured defaults.
type GenerateRequest struct {
	Prompt        string   `json:"prompt"`
	MaxTokens     *int     `json:"max_tokens,omitempty"`
	Temperature   *float32 `json:"temperature,omitempty"`
	TopK          *int     `json:"top_k,omitempty"`
	TopP          *float32 `json:"top_p,omitempty"`
	RepeatPenalty *float32 `json:"repeat_penalty,omitempty"`
	Seed          *uint64  `json:"seed,omitempty"`
	Stream        bool     `json:"stream,omitempty"`
	Background    bool     `json:"background,omitempty"`
}

const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusFailed     = "failed"
)

type SessionResponse struct {
	ID          string     `json:"id"`
	Object      string     `json:"object"`
	Status      string     `json:"status"`
	Text        string     `json:"text"`
	CreatedAt   int64      `json:"created_at"`
	CompletedAt *int64     `json:"completed_at,omitempty"`
	Usage       *Usage     `json:"usage,omitempty"`
	Error       *ErrorBody `json:"error,omitempty"`
}

type Usage struct {
	OutputTokens    int     `json:"output_tokens"`
	DurationMS      int64   `json:"duration_ms"`
	TTFTMS          int64   `json:"ttft_ms"`
	TokensPerSecond float64 `json:"tokens_per_second"`
}

type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

type HealthResponse struct {
	Status   string        `json:"status"`
	State    string        `json:"state"`
	Ready    bool          `json:"ready"`
	Busy     bool          `json:"busy"`
	Backend  string        `json:"backend,omitempty"`
	Artifact *ArtifactInfo `json:"artifact,omitempty"`
	Cause    string        `json:"cause,omitempty"`
}

type ArtifactInfo struct {
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	SizeHuman   string `json:"size_human"`
	Fingerprint string `json:"fingerprint"`
	Mapped      bool   `json:"mapped"`
}

type DeviceResponse struct {
	TotalMemory     uint64 `json:"total_memory"`
	AvailableMemory uint64 `json:"available_memory"`
	MaxHeap         uint64 `json:"max_heap"`
	UsedHeap        uint64 `json:"used_heap"`
	AvailableHeap   uint64 `json:"available_heap"`
	Cores           int    `json:"cores"`
	LowMemory       bool   `json:"low_memory"`
	Suitable        bool   `json:"suitable"`
	Threads         int    `json:"recommended_threads"`
}

type streamEvent struct {
	Type           string           `json:"type"`
	Session        *SessionResponse `json:"session,omitempty"`
	Delta          string           `json:"delta,omitempty"`
	SequenceNumber int              `json:"sequence_number"`
}

func healthFromStatus(st runtime.Status) HealthResponse {
	out := HealthResponse{
		Status: "unavailable",
		State:  st.State.String(),
		Ready:  st.State == runtime.Ready,
		Busy:   st.Busy,
	}
	if out.Ready {
		out.Status = "ok"
	}
	if st.Choice.Kind != "" {
		out.Backend = st.Choice.String()
	}
	if st.Artifact.Path != "" {
		out.Artifact = artifactInfo(st.Artifact)
	}
	if st.Cause != nil {
		out.Cause = st.Cause.Error()
	}
	return out
}

func artifactInfo(info artifact.Info) *ArtifactInfo {
	return &ArtifactInfo{
		Path:        info.Path,
		Size:        info.Size,
		SizeHuman:   artifact.FormatSize(info.Size),
		Fingerprint: fmt.Sprintf("%016x", info.Fingerprint),
		Mapped:      info.Mapped,
	}
}

func deviceFromProfile(p device.Profile) DeviceResponse {
	return DeviceResponse{
		TotalMemory:     p.TotalMemory,
		AvailableMemory: p.AvailableMemory,
		MaxHeap:         p.MaxHeap,
		UsedHeap:        p.UsedHeap,
		AvailableHeap:   p.AvailableHeap,
		Cores:           p.Cores,
		LowMemory:       p.LowMemory,
		Suitable:        device.IsSuitable(p),
		Threads:         device.RecommendedThreadCount(p.Cores),
	}
}

func outcomeStatus(o generation.Outcome) string {
	switch o {
	case generation.Completed:
		return StatusCompleted
	case generation.Cancelled:
		return StatusCancelled
	default:
		return StatusFailed
	}
}
