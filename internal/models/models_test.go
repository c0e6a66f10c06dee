package models

import (
	"encoding/json"
	"testing"
)

func TestJSONBMarshal(t *testing.T) {
	j := JSONB{
		"location": "a quiet park",
		"mood":     "warm",
	}

	data, err := j.Value()
	if err != nil {
		t.Fatalf("failed to marshal JSONB: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data.([]byte), &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["mood"] != "warm" {
		t.Errorf("expected mood=warm, got %v", result["mood"])
	}
}

func TestJSONBScan(t *testing.T) {
	jsonData := []byte(`{"color": "blue", "size": 10}`)

	var j JSONB
	if err := j.Scan(jsonData); err != nil {
		t.Fatalf("failed to scan: %v", err)
	}

	if j["color"] != "blue" {
		t.Errorf("expected color=blue, got %v", j["color"])
	}

	if j["size"].(float64) != 10 {
		t.Errorf("expected size=10, got %v", j["size"])
	}
}

func TestAnalysisAccessors(t *testing.T) {
	var a Analysis
	if err := a.Scan([]byte(`{
		"characters": [{"id": 1, "name": "Mia", "voiceStyle": "young girl voice"}],
		"setting": {"location": "Park", "artStyle": "watercolor"},
		"narrative": {"tone": "light"}
	}`)); err != nil {
		t.Fatalf("failed to scan: %v", err)
	}

	if a.Location() != "Park" {
		t.Errorf("expected location=Park, got %q", a.Location())
	}
	if a.ArtStyle() != "watercolor" {
		t.Errorf("expected artStyle=watercolor, got %q", a.ArtStyle())
	}
	if c := a.Character("Mia"); c == nil || c.VoiceStyle != "young girl voice" {
		t.Errorf("unexpected character lookup: %+v", c)
	}
	if a.Character("Nobody") != nil {
		t.Error("expected nil for unknown character")
	}

	var nilAnalysis *Analysis
	if nilAnalysis.Location() != "" {
		t.Error("nil analysis should have no location")
	}
}

func TestSceneListValue(t *testing.T) {
	var empty SceneList
	data, err := empty.Value()
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if string(data.([]byte)) != "[]" {
		t.Errorf("expected [], got %s", data)
	}

	var scanned SceneList
	if err := scanned.Scan(`[{"index": 0, "description": "Dawn"}]`); err != nil {
		t.Fatalf("failed to scan: %v", err)
	}
	if len(scanned) != 1 || scanned[0].Description != "Dawn" {
		t.Errorf("unexpected scenes: %+v", scanned)
	}
}

func TestNarrationText(t *testing.T) {
	if got := (Scene{Description: "desc", Dialogue: "hi"}).NarrationText(); got != "hi" {
		t.Errorf("expected dialogue, got %q", got)
	}
	if got := (Scene{Description: "desc"}).NarrationText(); got != "desc" {
		t.Errorf("expected description, got %q", got)
	}
}

func TestJobStatusBusy(t *testing.T) {
	busy := []JobStatus{
		JobStatusQueued,
		JobStatusAnalyzing,
		JobStatusSegmenting,
		JobStatusGeneratingImages,
		JobStatusGeneratingAudio,
		JobStatusRendering,
	}
	for _, status := range busy {
		if !status.Busy() {
			t.Errorf("expected %s to be busy", status)
		}
	}

	idle := []JobStatus{JobStatusAnalyzed, JobStatusSegmented, JobStatusCompleted, JobStatusFailed}
	for _, status := range idle {
		if status.Busy() {
			t.Errorf("expected %s to be idle", status)
		}
	}
}
