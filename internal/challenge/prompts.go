package challenge

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/sensei/internal/domain"
)

// ShapeDirective is appended when parsed output failed the shape checks.
const ShapeDirective = "VALIDATION ERROR: Your response did not match the expected format. Please ensure you return valid JSON matching the example exactly."

var typeGuidelines = map[domain.ChallengeType]string{
	domain.ChallengeCode:       "Write a function/class. Include a clear problem statement with constraints, input/output format, and examples. Test cases must have concrete inputs and expected outputs that can be verified.",
	domain.ChallengeQuiz:       "Ask a conceptual multiple-choice question with 4 options (A-D). Only ONE answer is correct. Make wrong options plausible but clearly wrong when you understand the concept. No ambiguous wording.",
	domain.ChallengeBugHunt:    "Present broken code with 1-2 subtle bugs. The code should look reasonable at first glance. Bugs should be the kind a real developer might introduce (off-by-one, wrong operator, missing edge case, concurrency issue).",
	domain.ChallengeDesign:     "Ask the user to design a system/component/API. Provide clear constraints and requirements. The solution should discuss tradeoffs.",
	domain.ChallengeSpeedRound: "Create a set of 3-5 quick problems on the topic, each solvable in 1-2 minutes. Focus on pattern recognition.",
}

// generationPrompt holds the resolved inputs of one generation request.
type generationPrompt struct {
	Subject        domain.Subject
	Type           domain.ChallengeType
	Difficulty     int
	Topic          string
	WeakTopics     []string
	UserLevel      int
	TotalCompleted int
}

func (g generationPrompt) String() string {
	minutes := domain.EstimatedMinutes(g.Difficulty)
	weak := "None yet"
	if len(g.WeakTopics) > 0 {
		weak = strings.Join(g.WeakTopics, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert programming instructor creating a daily challenge for the %q track.\n\n", g.Subject.Name)
	fmt.Fprintf(&b, "Generate a **%s** challenge.\n", g.Type)
	fmt.Fprintf(&b, "Difficulty: %d/5 (1=beginner, 3=intermediate, 5=expert)\n", g.Difficulty)
	fmt.Fprintf(&b, "Topic focus: %s\n\n", g.Topic)

	b.WriteString("User context:\n")
	fmt.Fprintf(&b, "- Recent weak areas: %s\n", weak)
	fmt.Fprintf(&b, "- Current level: %d\n", g.UserLevel)
	fmt.Fprintf(&b, "- Challenges completed so far: %d\n\n", g.TotalCompleted)

	b.WriteString("CHALLENGE TYPE GUIDELINES:\n")
	for _, t := range domain.ChallengeTypes {
		fmt.Fprintf(&b, "- **%s**: %s\n", t, typeGuidelines[t])
	}

	b.WriteString("\nREQUIREMENTS:\n")
	fmt.Fprintf(&b, "- Completable in ~%d minutes\n", minutes)
	b.WriteString("- Clear, unambiguous problem statement\n")
	b.WriteString("- 3 progressive hints: hint 1 = gentle nudge, hint 2 = key insight, hint 3 = nearly reveals the approach\n")
	b.WriteString("- Complete ideal solution with brief explanation\n")
	b.WriteString("- For code challenges: 2-3 test cases with concrete input/output values\n")
	b.WriteString("- For quiz challenges: include the correct answer letter in the solution\n\n")

	b.WriteString("IMPORTANT: Return ONLY valid JSON. No markdown fences, no explanations outside JSON.\n\n")
	b.WriteString("Return this exact JSON structure:\n")
	fmt.Fprintf(&b, `{
  "title": "Short descriptive title (under 80 chars)",
  "description": "Full problem statement with examples and constraints",
  "hints": ["Hint 1 (gentle)", "Hint 2 (key insight)", "Hint 3 (nearly reveals)"],
  "solution": "Complete solution with explanation",
  "test_cases": [{"input": "concrete input", "expected": "concrete output"}],
  "topics_covered": ["topic1", "topic2"],
  "difficulty": %d,
  "estimated_minutes": %d
}`, g.Difficulty, minutes)

	return b.String()
}

// evaluationPrompt embeds the grading rubric around one answer.
type evaluationPrompt struct {
	Title         string
	Description   string
	IdealSolution string
	UserAnswer    string
}

func (e evaluationPrompt) String() string {
	var b strings.Builder
	b.WriteString("You are evaluating a student's answer to a programming challenge.\n\n")
	fmt.Fprintf(&b, "Challenge: %s\n\n", e.Title)
	fmt.Fprintf(&b, "Problem description:\n%s\n\n", e.Description)
	fmt.Fprintf(&b, "Ideal solution:\n%s\n\n", e.IdealSolution)
	fmt.Fprintf(&b, "Student's answer:\n%s\n\n", e.UserAnswer)

	b.WriteString(`Evaluation criteria:
1. **Correctness**: Does the solution solve the problem? Does it handle the stated constraints?
2. **Code quality**: Is the code clean, readable, and well-structured? Does it follow the conventions of the relevant language/framework?
3. **Edge cases**: Does it handle boundary conditions mentioned or implied in the problem?
4. **Efficiency**: Is the solution reasonably optimized? (Don't penalize for non-optimal solutions unless the problem explicitly asks for a specific complexity)

For quiz answers: focus on whether the selected answer is correct. Partial credit for correct reasoning with wrong letter.
For bughunt answers: focus on whether the bugs were correctly identified and the fixes are valid.

Scoring guide:
- 90-100%: Correct, clean, handles edge cases
- 70-89%: Mostly correct, minor issues
- 50-69%: Partially correct, significant gaps
- 20-49%: Shows understanding but fundamentally flawed
- 0-19%: Incorrect or irrelevant

IMPORTANT: Return ONLY valid JSON. No markdown fences, no explanations outside JSON.

Return this exact JSON structure:
{
  "correctness_pct": 85,
  "feedback": "2-3 sentence summary of the evaluation",
  "strengths": ["Specific thing done well", "Another strength"],
  "improvements": ["Specific suggestion", "Another improvement"],
  "xp_awarded": 45
}`)

	return b.String()
}
