package coach

import (
	"context"
	"sync"

	"github.com/abhisek/codecoach/internal/api"
)

// fakeAPI answers every call with canned success unless a hook is set.
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int

	start    func(ctx context.Context, req api.StartRequest) (*api.StartResponse, error)
	next     func(ctx context.Context, id string) (*api.TransitionResponse, error)
	complete func(ctx context.Context, id string) (*api.CompleteResponse, error)
	hint     func(ctx context.Context, id, q string) (*api.HintResponse, error)
	chal     func(ctx context.Context, id string) (*api.ChallengeData, error)
	feedback func(ctx context.Context, id, code string) (*api.FeedbackResponse, error)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{calls: make(map[string]int)}
}

func (f *fakeAPI) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) StartSession(ctx context.Context, req api.StartRequest) (*api.StartResponse, error) {
	f.record("start")
	if f.start != nil {
		return f.start(ctx, req)
	}
	r := &api.StartResponse{SessionID: "abc123"}
	r.Message = "Let's begin..."
	return r, nil
}

func (f *fakeAPI) NextStage(ctx context.Context, id string) (*api.TransitionResponse, error) {
	f.record("next")
	if f.next != nil {
		return f.next(ctx, id)
	}
	return &api.TransitionResponse{NewStage: "solution_design", TransitionMessage: "On to design."}, nil
}

func (f *fakeAPI) Complete(ctx context.Context, id string) (*api.CompleteResponse, error) {
	f.record("complete")
	if f.complete != nil {
		return f.complete(ctx, id)
	}
	return &api.CompleteResponse{LearningCompleted: true, Summary: "Well done."}, nil
}

func (f *fakeAPI) Explain(_ context.Context, _, concept string) (*api.ExplainResponse, error) {
	f.record("explain")
	return &api.ExplainResponse{Explanation: concept + " explained"}, nil
}

func (f *fakeAPI) Hint(ctx context.Context, id, q string) (*api.HintResponse, error) {
	f.record("hint")
	if f.hint != nil {
		return f.hint(ctx, id, q)
	}
	return &api.HintResponse{Hint: "Try a smaller input."}, nil
}

func (f *fakeAPI) Challenge(ctx context.Context, id string) (*api.ChallengeData, error) {
	f.record("challenge")
	if f.chal != nil {
		return f.chal(ctx, id)
	}
	return &api.ChallengeData{Challenge: "Q?\nA) x\nB) y", CorrectAnswer: "B", Explanation: "because"}, nil
}

func (f *fakeAPI) CheckChallenge(_ context.Context, _, answer string) (*api.CheckResult, error) {
	f.record("check")
	return &api.CheckResult{IsCorrect: answer == "B", Feedback: "checked"}, nil
}

func (f *fakeAPI) Feedback(ctx context.Context, id, code string) (*api.FeedbackResponse, error) {
	f.record("feedback")
	if f.feedback != nil {
		return f.feedback(ctx, id, code)
	}
	return &api.FeedbackResponse{Feedback: "Looks fine."}, nil
}

func (f *fakeAPI) Status(_ context.Context, _ string) (*api.StatusResponse, error) {
	f.record("status")
	return &api.StatusResponse{CurrentStage: "problem_analysis"}, nil
}
