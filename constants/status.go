package constants

// RunState is the state of one pipeline run.
type RunState string

// A run moves strictly forward through these states and ends in Assembled or Failed.
const (
	StateReceived        RunState = "RECEIVED"
	StatePreprocessed    RunState = "PREPROCESSED"
	StateTextExtracted   RunState = "TEXT_EXTRACTED"
	StateFaceChecked     RunState = "FACE_CHECKED"
	StateFieldsExtracted RunState = "FIELDS_EXTRACTED"
	StateAssembled       RunState = "ASSEMBLED" // terminal
	StateFailed          RunState = "FAILED"    // terminal
)

// Stage tags which step a failure belongs to.
type Stage string

const (
	StageInput      Stage = "input"
	StageDecode     Stage = "decode"
	StagePreprocess Stage = "preprocess"
	StageText       Stage = "text"
	StageFace       Stage = "face"
	StageFields     Stage = "fields"
	StageAssemble   Stage = "assemble"
)

// FaceNotFound is the envelope value when no face crop was stored.
const FaceNotFound = "Not found"
