package api

import (
	"encoding/json"
	"strings"
)

// Envelope carries the fields every backend response may contain.
type Envelope struct {
	// Success is nil when the backend omitted the field; some revisions of
	// the hint endpoint do.
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e *Envelope) envelope() *Envelope { return e }

// failure returns a BusinessError when the response reported success:false.
func (e *Envelope) failure() error {
	if e.Success == nil || *e.Success {
		return nil
	}
	msg := e.Error
	if msg == "" {
		msg = e.Message
	}
	return &BusinessError{Message: msg}
}

// StartRequest is the body of POST /api/start_session.
type StartRequest struct {
	Problem    string `json:"problem"`
	Language   string `json:"language"`
	SkillLevel string `json:"skillLevel"`
	Model      string `json:"model"`
}

// StartResponse is returned by POST /api/start_session.
type StartResponse struct {
	Envelope
	SessionID string `json:"sessionId"`
	// Message here is the tutor's greeting, not an error text.
}

// Greeting returns the initial AI message.
func (r *StartResponse) Greeting() string { return r.Envelope.Message }

// TransitionResponse is returned by POST /api/session/{id}/stage/next.
type TransitionResponse struct {
	Envelope
	NewStage          string `json:"newStage"`
	TransitionMessage string `json:"transitionMessage"`
	IsLastStage       bool   `json:"isLastStage,omitempty"`
	StageIndex        int    `json:"stageIndex,omitempty"`
	TotalStages       int    `json:"totalStages,omitempty"`
}

// CompleteResponse is returned by POST /api/session/{id}/complete.
type CompleteResponse struct {
	Envelope
	LearningCompleted bool   `json:"learningCompleted,omitempty"`
	Summary           string `json:"summary"`
}

// ExplainResponse is returned by /api/session/{id}/explain/{concept}.
type ExplainResponse struct {
	Envelope
	Explanation string `json:"explanation"`
}

// HintRequest is the body of POST /api/session/{id}/hint.
type HintRequest struct {
	HintRequest string `json:"hintRequest"`
}

// HintResponse is returned by POST /api/session/{id}/hint.
type HintResponse struct {
	Envelope
	Hint string `json:"hint"`
}

// ChallengeData is the payload of a mini-challenge.
type ChallengeData struct {
	Challenge     string `json:"challenge"`
	CorrectAnswer string `json:"correctAnswer"`
	Explanation   string `json:"explanation"`
}

// ChallengeResponse is returned by POST /api/session/{id}/challenge.
type ChallengeResponse struct {
	Envelope
	ChallengeData *ChallengeData `json:"challengeData"`
}

// CheckRequest is the body of POST /api/session/{id}/challenge/check.
type CheckRequest struct {
	Answer string `json:"answer"`
}

// CheckResult is returned by POST /api/session/{id}/challenge/check.
type CheckResult struct {
	Envelope
	IsCorrect   bool   `json:"isCorrect"`
	Feedback    string `json:"feedback"`
	Explanation string `json:"explanation,omitempty"`
}

// FeedbackRequest is the body of the code feedback endpoints.
type FeedbackRequest struct {
	Code string `json:"code"`
}

// FeedbackResponse covers both /feedback ({feedback}) and /feedback_v2
// ({analysis, analysis_type}).
type FeedbackResponse struct {
	Envelope
	Feedback     string `json:"feedback,omitempty"`
	Analysis     string `json:"analysis,omitempty"`
	AnalysisType string `json:"analysis_type,omitempty"`
}

// Text returns whichever feedback body the backend sent.
func (r *FeedbackResponse) Text() string {
	if r.Feedback != "" {
		return r.Feedback
	}
	return r.Analysis
}

// StatusResponse is returned by GET /api/session/{id}/status.
type StatusResponse struct {
	Envelope
	CurrentStage      string `json:"currentStage"`
	CurrentStageIndex int    `json:"currentStageIndex"`
	TotalStages       int    `json:"totalStages"`
	IsLastStage       bool   `json:"isLastStage"`
	LearningCompleted bool   `json:"learningCompleted"`
	CanTransitionNext bool   `json:"canTransitionNext"`
	CanComplete       bool   `json:"canComplete"`
}

// errorBody is the shape of non-2xx responses. FastAPI sends detail as a
// string for HTTPException and as a list of objects for validation errors.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

func (b errorBody) text() string {
	if len(b.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(b.Detail, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(b.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
