package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Enums
type JobStatus string

const (
	JobStatusQueued           JobStatus = "queued"
	JobStatusAnalyzing        JobStatus = "analyzing"
	JobStatusAnalyzed         JobStatus = "analyzed"
	JobStatusSegmenting       JobStatus = "segmenting"
	JobStatusSegmented        JobStatus = "segmented"
	JobStatusGeneratingImages JobStatus = "generating_images"
	JobStatusImagesReady      JobStatus = "images_ready"
	JobStatusGeneratingAudio  JobStatus = "generating_audio"
	JobStatusAudioReady       JobStatus = "audio_ready"
	JobStatusRendering        JobStatus = "rendering"
	JobStatusCompleted        JobStatus = "completed"
	JobStatusFailed           JobStatus = "failed"
)

// Busy reports whether a worker currently owns the job.
func (s JobStatus) Busy() bool {
	switch s {
	case JobStatusQueued, JobStatusAnalyzing, JobStatusSegmenting,
		JobStatusGeneratingImages, JobStatusGeneratingAudio, JobStatusRendering:
		return true
	}
	return false
}

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Models

type Character struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Age         string `json:"age,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Appearance  string `json:"appearance,omitempty"`
	Clothing    string `json:"clothing,omitempty"`
	Personality string `json:"personality,omitempty"`
	VoiceStyle  string `json:"voiceStyle,omitempty"`
}

// Analysis is the structured read of a script: who is in it, where it happens
// and how it should feel. Setting and Narrative are free-form objects.
type Analysis struct {
	Characters []Character `json:"characters"`
	Setting    JSONB       `json:"setting"`
	Narrative  JSONB       `json:"narrative"`
}

// Location returns setting.location when it is a string.
func (a *Analysis) Location() string {
	if a == nil {
		return ""
	}
	loc, _ := a.Setting["location"].(string)
	return loc
}

// ArtStyle returns setting.artStyle when it is a string.
func (a *Analysis) ArtStyle() string {
	if a == nil {
		return ""
	}
	style, _ := a.Setting["artStyle"].(string)
	return style
}

// Character finds a character by exact name.
func (a *Analysis) Character(name string) *Character {
	if a == nil {
		return nil
	}
	for i := range a.Characters {
		if a.Characters[i].Name == name {
			return &a.Characters[i]
		}
	}
	return nil
}

func (a Analysis) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *Analysis) Scan(value interface{}) error {
	return scanJSON(value, a)
}

type Scene struct {
	Index        int      `json:"index"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Dialogue     string   `json:"dialogue,omitempty"`
	Action       string   `json:"action,omitempty"`
	Setting      string   `json:"setting,omitempty"`
	Characters   []string `json:"characters"`
	DurationHint int      `json:"durationHint"` // seconds, from word count
	ImagePath    string   `json:"imagePath,omitempty"`
	ImageURL     string   `json:"imageUrl,omitempty"`
	AudioPath    string   `json:"audioPath,omitempty"`
	AudioURL     string   `json:"audioUrl,omitempty"`
	Duration     float64  `json:"duration,omitempty"` // resolved at render time
}

// NarrationText is what gets voiced: dialogue, falling back to description.
func (s Scene) NarrationText() string {
	if s.Dialogue != "" {
		return s.Dialogue
	}
	return s.Description
}

// SceneList is stored as a single JSONB column, in playback order.
type SceneList []Scene

func (l SceneList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]Scene{})
	}
	return json.Marshal([]Scene(l))
}

func (l *SceneList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// RenderOptions are the caller-facing knobs for the final render.
type RenderOptions struct {
	Transition         string   `json:"transition,omitempty"`
	TransitionDuration float64  `json:"transitionDuration,omitempty"`
	BackgroundMusic    string   `json:"backgroundMusic,omitempty"`
	MusicVolume        *float64 `json:"musicVolume,omitempty"` // absent means the default
	UseTransitions     bool     `json:"useTransitions"`
	CrossfadeAudio     bool     `json:"crossfadeAudio,omitempty"`
}

type Job struct {
	ID             uuid.UUID  `json:"id"`
	Script         string     `json:"script"`
	Analysis       *Analysis  `json:"analysis,omitempty"`
	Scenes         SceneList  `json:"scenes"`
	Status         JobStatus  `json:"status"`
	Progress       int        `json:"progress"` // 0-100
	Attempts       int        `json:"attempts"`
	FinalVideoURL  *string    `json:"final_video_url,omitempty"`
	PublicVideoURL *string    `json:"public_video_url,omitempty"` // Supabase copy when configured
	VideoDuration  *float64   `json:"video_duration,omitempty"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// DTOs for API requests and responses

type CreateJobRequest struct {
	Script string `json:"script"`
}

type CreateJobResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status JobStatus `json:"status"`
}

type UpdateScenesRequest struct {
	Scenes []Scene `json:"scenes"`
}

type WorkflowRequest struct {
	Script  string        `json:"script"`
	Options RenderOptions `json:"options"`
}

func scanJSON(value interface{}, dst interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported JSON column type %T", value)
	}
}
