package session

import (
	"regexp"
	"strings"
)

// Challenge is the single active mini-challenge of a session.
type Challenge struct {
	Question      string
	CorrectAnswer string
	Explanation   string
}

// ChallengeOption is one multiple-choice option parsed from a question.
type ChallengeOption struct {
	Label string
	Text  string
}

// ChallengeView is a display-oriented breakdown of a challenge question.
type ChallengeView struct {
	// Prompt is the question text with options and the code block removed.
	Prompt   string
	Options  []ChallengeOption
	Code     string
	CodeLang string
}

var optionLine = regexp.MustCompile(`^\s*\(?([A-Da-d])[\)\.:]\s+(.+?)\s*$`)

// ParseChallenge splits a challenge question into its prompt, any
// multiple-choice options (lines such as "A) ..." or "B. ...") and the
// first fenced code block. Text that matches neither stays in the prompt.
func ParseChallenge(question string) ChallengeView {
	var (
		view   ChallengeView
		prompt []string
		inCode bool
		code   []string
		seen   bool
	)

	for _, line := range strings.Split(question, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if inCode {
				inCode = false
				seen = true
				continue
			}
			if !seen {
				inCode = true
				view.CodeLang = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
				continue
			}
		}
		if inCode {
			code = append(code, line)
			continue
		}
		if m := optionLine.FindStringSubmatch(line); m != nil {
			view.Options = append(view.Options, ChallengeOption{
				Label: strings.ToUpper(m[1]),
				Text:  m[2],
			})
			continue
		}
		prompt = append(prompt, line)
	}

	// An unterminated fence is treated as code up to the end of the text.
	view.Code = strings.Join(code, "\n")
	view.Prompt = strings.TrimSpace(strings.Join(prompt, "\n"))
	return view
}

// IsMultipleChoice reports whether options were found in the question.
func (v ChallengeView) IsMultipleChoice() bool { return len(v.Options) > 1 }
