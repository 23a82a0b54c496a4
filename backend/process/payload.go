package process

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/geospeed/geospeed/backend"
)

// payload is the JSON object a backend writes as its last non-empty stdout
// line. All fields are optional; engines report what they can.
type payload struct {
	LoadSeconds      float64  `json:"load_s"`
	TransformSeconds float64  `json:"transform_s"`
	PersistSeconds   float64  `json:"persist_s"`
	Features         int64    `json:"features"`
	OutputBytes      int64    `json:"output_bytes"`
	Scratch          []string `json:"scratch"`
	Stage            string   `json:"stage"`
	Error            string   `json:"error"`
}

// parsePayload scans the combined output for the last line that decodes as
// a payload object. Engines print progress logs freely; only the final JSON
// line is the protocol.
func parsePayload(r io.Reader) (*payload, error) {
	var last *payload

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "{") {
			continue
		}
		p := payload{Features: -1, OutputBytes: -1}
		if err := json.Unmarshal([]byte(line), &p); err != nil {
			continue
		}
		last = &p
	}
	if err := scanner.Err(); err != nil {
		return last, fmt.Errorf("scan output: %w", err)
	}
	if last == nil {
		return nil, fmt.Errorf("no outcome payload in output")
	}
	return last, nil
}

// classifyFailure attributes a failed run to a pipeline stage. The engine's
// own stage report wins; otherwise the failure belongs to the stage after
// the last one whose timing was reported.
func classifyFailure(p *payload, runErr error) (backend.Stage, error) {
	if p == nil {
		return backend.StageLoad, runErr
	}

	detail := runErr
	if p.Error != "" {
		detail = fmt.Errorf("%s: %w", p.Error, runErr)
	}

	switch p.Stage {
	case string(backend.StageLoad), string(backend.StageTransform), string(backend.StagePersist):
		return backend.Stage(p.Stage), detail
	}

	switch {
	case p.TransformSeconds > 0 || p.PersistSeconds > 0:
		return backend.StagePersist, detail
	case p.LoadSeconds > 0:
		return backend.StageTransform, detail
	default:
		return backend.StageLoad, detail
	}
}
