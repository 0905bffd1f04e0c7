package devserver

import (
	"fmt"
	"strings"

	"github.com/abhisek/codecoach/internal/session"
)

// focusAreas name what each stage's challenges and hints concentrate on.
var focusAreas = map[session.Stage]string{
	session.StageProblemAnalysis:   "problem understanding and input/output analysis",
	session.StageSolutionDesign:    "algorithm design and data structure selection",
	session.StageImplementation:    "coding implementation and syntax",
	session.StageTestingRefinement: "edge cases and error handling",
	session.StageReflection:        "code optimization and best practices",
}

func focusArea(st session.Stage) string {
	if f, ok := focusAreas[st]; ok {
		return f
	}
	return "general programming concepts"
}

type scriptedChallenge struct {
	question    string
	options     []string
	correct     int
	explanation string
}

var challenges = map[session.Stage]scriptedChallenge{
	session.StageProblemAnalysis: {
		question:    "Before writing any code, what should you pin down first?",
		options:     []string{"The variable names", "The inputs, outputs and constraints", "The test framework", "The final complexity"},
		correct:     1,
		explanation: "Knowing exactly what goes in and what must come out frames every later decision.",
	},
	session.StageSolutionDesign: {
		question:    "Which data structure gives O(1) average lookup by key?",
		options:     []string{"Linked list", "Sorted array", "Hash map", "Binary heap"},
		correct:     2,
		explanation: "A hash map trades memory for constant average-time lookups.",
	},
	session.StageImplementation: {
		question:    "What does this print?\n```python\nitems = [1, 2, 3]\nprint(items[-1])\n```",
		options:     []string{"1", "3", "IndexError", "None"},
		correct:     1,
		explanation: "Negative indices count from the end, so -1 is the last element.",
	},
	session.StageTestingRefinement: {
		question:    "Which input is most likely to expose an off-by-one bug?",
		options:     []string{"A typical medium-sized input", "An empty or single-element input", "Random input", "Already sorted input"},
		correct:     1,
		explanation: "Boundary sizes exercise loop bounds that typical inputs never reach.",
	},
	session.StageReflection: {
		question:    "What is the main benefit of reviewing a working solution?",
		options:     []string{"Making it longer", "Finding simpler or faster approaches", "Renaming files", "Removing tests"},
		correct:     1,
		explanation: "Reflection turns a one-off answer into a reusable technique.",
	},
}

func (c scriptedChallenge) text(st session.Stage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Mini-challenge on %s.\n\n%s\n\n", focusArea(st), c.question)
	for i, opt := range c.options {
		fmt.Fprintf(&b, "%c) %s\n", 'A'+i, opt)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c scriptedChallenge) correctLabel() string {
	return string(rune('A' + c.correct))
}

// accepts reports whether answer names the correct option, either by
// letter or by its text.
func (c scriptedChallenge) accepts(answer string) bool {
	a := strings.TrimSpace(answer)
	a = strings.TrimRight(strings.TrimLeft(a, "("), ").:")
	return strings.EqualFold(a, c.correctLabel()) || strings.EqualFold(a, c.options[c.correct])
}

func greeting(problem, language, level string) string {
	return fmt.Sprintf("Let's begin working on %q in %s at a %s level. "+
		"Start by restating the problem in your own words: what are the inputs, and what should the output be?",
		problem, language, level)
}

func reply(st session.Stage, userText string) string {
	return fmt.Sprintf("Good point about %q. While we're in %s, focus on %s. "+
		"What would you try next, and why?", clip(userText, 60), st.Title(), focusArea(st))
}

func hint(st session.Stage, query string) string {
	return fmt.Sprintf("You asked about %q. Think about %s: break the problem into the smallest case you can solve by hand, then grow it one step at a time.",
		query, focusArea(st))
}

func explanation(concept, language string) string {
	return fmt.Sprintf("**%s** is a building block you will meet often in %s. "+
		"Try describing it with a tiny example first, then relate that example back to the problem.", concept, language)
}

func transition(prev, next session.Stage) string {
	return fmt.Sprintf("Nice work on %s. Now let's move on to %s: %s", prev.Title(), next.Title(), next.Description())
}

func summary(problem string) string {
	return fmt.Sprintf("## Summary\n\nYou worked through %q from analysis to reflection. "+
		"Keep practising the habit of stating inputs and outputs before designing a solution.", problem)
}

func codeFeedback(language, code string) string {
	lines := strings.Count(strings.TrimRight(code, "\n"), "\n") + 1
	if strings.TrimSpace(code) == "" {
		lines = 0
	}
	var notes []string
	if strings.Contains(code, "TODO") {
		notes = append(notes, "there is still a TODO left in the code")
	}
	if !strings.Contains(code, "return") {
		notes = append(notes, "no value is returned yet")
	}
	if len(notes) == 0 {
		notes = append(notes, "the structure looks reasonable")
	}
	return fmt.Sprintf("You submitted %d lines of %s. Observations: %s. Next, walk through it with an empty input.",
		lines, language, strings.Join(notes, "; "))
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// words splits text into word-sized chunks whose concatenation is text.
func words(text string) []string {
	return strings.SplitAfter(text, " ")
}
