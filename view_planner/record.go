package viewplanner

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.viam.com/rdk/spatialmath"
	"google.golang.org/protobuf/encoding/protojson"
)

// ViewpointRecord is one line of the viewpoint log.
type ViewpointRecord struct {
	Step    int             `json:"step"`
	Time    time.Time       `json:"time"`
	Mode    string          `json:"mode"`
	Utility float64         `json:"utility"`
	Pose    json.RawMessage `json:"pose"`
}

// Recorder appends executed viewpoints to a JSON-lines log.
type Recorder struct {
	mu  sync.Mutex
	c   io.Closer
	enc *json.Encoder
}

// NewRecorder writes records to w.
func NewRecorder(w io.Writer) *Recorder {
	r := &Recorder{enc: json.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		r.c = c
	}
	return r
}

// OpenRecorder appends records to the file at path.
func OpenRecorder(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open viewpoint log: %w", err)
	}
	return NewRecorder(f), nil
}

// Record writes one executed viewpoint.
func (r *Recorder) Record(step int, at time.Time, mode PlannerMode, c Candidate) error {
	pose, err := protojson.Marshal(spatialmath.PoseToProtobuf(c.Pose()))
	if err != nil {
		return fmt.Errorf("marshal pose: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enc.Encode(ViewpointRecord{
		Step:    step,
		Time:    at,
		Mode:    mode.String(),
		Utility: c.Utility,
		Pose:    pose,
	})
}

// Close closes the underlying file, if any.
func (r *Recorder) Close() error {
	if r.c == nil {
		return nil
	}
	return r.c.Close()
}
