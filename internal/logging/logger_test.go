package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace": zerolog.TraceLevel,
		"debug": zerolog.DebugLevel,
		"info":  zerolog.InfoLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"":      zerolog.InfoLevel,
		"LOUD":  zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestStartupLoggerEmitsSingleEvent(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	defer func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	}()

	NewStartupLogger("annotation-router").
		Storage("backend", "s3").
		Route("randomsampled", "cleanproduction").
		Feature("dryRun", true).
		Config("imagePrefix", "http://localhost:9000/").
		Log()

	var evt map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &evt); err != nil {
		t.Fatalf("startup event is not a single JSON object: %v\n%s", err, buf.String())
	}
	if evt["message"] != "Startup complete" {
		t.Errorf("message = %v", evt["message"])
	}
	routes, _ := evt["routes"].(map[string]interface{})
	if routes["randomsampled"] != "cleanproduction" {
		t.Errorf("routes = %v", evt["routes"])
	}
	features, _ := evt["features"].(map[string]interface{})
	if features["dryRun"] != true {
		t.Errorf("features = %v", evt["features"])
	}
	process, _ := evt["process"].(map[string]interface{})
	if process["name"] != "annotation-router" {
		t.Errorf("process = %v", evt["process"])
	}
}
