package pipeline

import (
	"time"

	"github.com/kopfenjager/Vision-crm-agent/constants"
	"github.com/kopfenjager/Vision-crm-agent/internal/llm"
)

// Envelope is the response body of a successful run.
type Envelope struct {
	CustomerID    string     `json:"Customer ID"`
	FaceImage     string     `json:"Face Image"`
	ExtractedData llm.Record `json:"Extracted Data"`
}

// Run is the trace of one request through the pipeline.
type Run struct {
	CustomerID string
	States     []constants.RunState
	Stage      constants.Stage // set when Failed
	Err        error

	RawText   string
	FaceFound bool
	FaceRef   string
	Partial   bool
	Warnings  []string
	Envelope  *Envelope // set when Assembled
	Elapsed   time.Duration
}

// State is the latest state reached.
func (r *Run) State() constants.RunState {
	if len(r.States) == 0 {
		return ""
	}
	return r.States[len(r.States)-1]
}

func (r *Run) advance(s constants.RunState) {
	r.States = append(r.States, s)
}

func (r *Run) fail(stage constants.Stage, err error) {
	r.Stage = stage
	r.Err = err
	r.advance(constants.StateFailed)
}
