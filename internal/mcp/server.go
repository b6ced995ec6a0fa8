package mcp

import (
	"context"
	"errors"
	"fmt"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"
	"github.com/felixgeelhaar/sensei/internal/domain"
	"github.com/felixgeelhaar/sensei/internal/practice"
	"github.com/felixgeelhaar/sensei/internal/progression"
	"github.com/google/uuid"
)

// PracticeService is the subset of practice.Service the tools call.
type PracticeService interface {
	Subjects() []domain.Subject
	NewChallenge(ctx context.Context, userID string, req practice.NewChallengeRequest) (*practice.ChallengeView, error)
	Hint(ctx context.Context, id uuid.UUID, current int) (*practice.HintResult, error)
	Submit(ctx context.Context, userID string, req practice.SubmitRequest) (*practice.SubmissionResult, error)
	Overview(ctx context.Context, userID string) (*practice.Overview, error)
	SubjectDetail(ctx context.Context, userID, subject string) (*practice.SubjectDetail, error)
	Streak(ctx context.Context, userID string) (progression.StreakView, error)
	NextDifficulty(ctx context.Context, userID, subject string) (int, error)
}

var _ PracticeService = (*practice.Service)(nil)

// Server wraps the MCP server with sensei functionality
type Server struct {
	mcpServer   *server.Server
	practice    PracticeService
	defaultUser string
}

// Config contains configuration for the MCP server
type Config struct {
	Practice    PracticeService
	DefaultUser string // used when a tool call names no user (default: local)
	Version     string
}

// NewServer creates a new MCP server for sensei
func NewServer(cfg Config) *Server {
	s := &Server{
		practice:    cfg.Practice,
		defaultUser: cfg.DefaultUser,
	}
	if s.defaultUser == "" {
		s.defaultUser = "local"
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s.mcpServer = server.New(server.Info{
		Name:    "sensei",
		Version: version,
	}, server.WithInstructions(`
Sensei generates practice challenges, grades answers and tracks progress.

Available tools:
- sensei_subjects: List practice subjects
- sensei_generate: Generate a challenge adapted to the learner
- sensei_hint: Reveal the next of three hints
- sensei_submit: Grade an answer and award XP
- sensei_progress: Show progress overall or for one subject
- sensei_streak: Show the daily streak
- sensei_next_difficulty: Recommend the next difficulty (1-5)

Typical flow: sensei_generate, optionally sensei_hint, then sensei_submit
with the challenge_id and the number of hints used.
`))

	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("sensei_subjects").
		Description("List the subjects challenges can be generated for.").
		Handler(s.handleSubjects)

	s.mcpServer.Tool("sensei_generate").
		Description("Generate a new challenge. Unset type, difficulty and topic are chosen from the learner's progress.").
		Handler(s.handleGenerate)

	s.mcpServer.Tool("sensei_hint").
		Description("Reveal the next hint for a challenge. Pass how many hints were already shown.").
		Handler(s.handleHint)

	s.mcpServer.Tool("sensei_submit").
		Description("Submit an answer for grading. Returns feedback, XP earned and the updated level and streak.").
		Handler(s.handleSubmit)

	s.mcpServer.Tool("sensei_progress").
		Description("Show progress across all subjects, or detail for one subject.").
		Handler(s.handleProgress)

	s.mcpServer.Tool("sensei_streak").
		Description("Show the learner's daily practice streak.").
		Handler(s.handleStreak)

	s.mcpServer.Tool("sensei_next_difficulty").
		Description("Recommend the difficulty (1-5) for the learner's next challenge in a subject.").
		Handler(s.handleNextDifficulty)
}

// Input/Output types for tools

type SubjectsInput struct {
	IncludeTopics bool `json:"include_topics,omitempty" jsonschema:"description=Include each subject's topic list"`
}

type SubjectOutput struct {
	Slug        string   `json:"slug"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Icon        string   `json:"icon"`
	Topics      []string `json:"topics,omitempty"`
}

type SubjectsOutput struct {
	Subjects []SubjectOutput `json:"subjects"`
}

type GenerateInput struct {
	UserID     string `json:"user_id,omitempty" jsonschema:"description=Learner ID (default: local)"`
	Subject    string `json:"subject" jsonschema:"description=Subject slug from sensei_subjects"`
	Type       string `json:"type,omitempty" jsonschema:"description=Challenge type,enum=code,enum=quiz,enum=bughunt,enum=design,enum=speedround"`
	Difficulty int    `json:"difficulty,omitempty" jsonschema:"description=Difficulty 1-5 (default: adaptive)"`
	Topic      string `json:"topic,omitempty" jsonschema:"description=Topic to focus on"`
}

type HintInput struct {
	ChallengeID string `json:"challenge_id" jsonschema:"description=Challenge ID from sensei_generate"`
	CurrentHint int    `json:"current_hint" jsonschema:"description=Number of hints already shown (0-2)"`
}

type SubmitInput struct {
	UserID           string `json:"user_id,omitempty" jsonschema:"description=Learner ID (default: local)"`
	ChallengeID      string `json:"challenge_id" jsonschema:"description=Challenge ID from sensei_generate"`
	Answer           string `json:"answer" jsonschema:"description=The learner's answer"`
	HintsUsed        int    `json:"hints_used,omitempty" jsonschema:"description=Hints revealed before answering (0-3)"`
	TimeTakenSeconds int    `json:"time_taken_seconds,omitempty" jsonschema:"description=Time spent on the challenge"`
}

type ProgressInput struct {
	UserID  string `json:"user_id,omitempty" jsonschema:"description=Learner ID (default: local)"`
	Subject string `json:"subject,omitempty" jsonschema:"description=Subject slug for detail; omit for the overview"`
}

type ProgressOutput struct {
	Overview *practice.Overview      `json:"overview,omitempty"`
	Detail   *practice.SubjectDetail `json:"detail,omitempty"`
}

type UserInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"description=Learner ID (default: local)"`
}

type DifficultyInput struct {
	UserID  string `json:"user_id,omitempty" jsonschema:"description=Learner ID (default: local)"`
	Subject string `json:"subject" jsonschema:"description=Subject slug"`
}

type DifficultyOutput struct {
	Subject    string `json:"subject"`
	Difficulty int    `json:"difficulty"`
}

// Tool handlers

func (s *Server) user(id string) string {
	if id == "" {
		return s.defaultUser
	}
	return id
}

func (s *Server) handleSubjects(_ context.Context, input SubjectsInput) (SubjectsOutput, error) {
	subjects := s.practice.Subjects()
	out := SubjectsOutput{Subjects: make([]SubjectOutput, 0, len(subjects))}
	for _, subj := range subjects {
		so := SubjectOutput{
			Slug:        subj.Slug,
			Name:        subj.Name,
			Description: subj.Description,
			Icon:        subj.Icon,
		}
		if input.IncludeTopics {
			so.Topics = subj.Topics
		}
		out.Subjects = append(out.Subjects, so)
	}
	return out, nil
}

func (s *Server) handleGenerate(ctx context.Context, input GenerateInput) (practice.ChallengeView, error) {
	view, err := s.practice.NewChallenge(ctx, s.user(input.UserID), practice.NewChallengeRequest{
		Subject:    input.Subject,
		Type:       domain.ChallengeType(input.Type),
		Difficulty: input.Difficulty,
		Topic:      input.Topic,
	})
	if err != nil {
		return practice.ChallengeView{}, toolError("generate challenge", err)
	}
	return *view, nil
}

func (s *Server) handleHint(ctx context.Context, input HintInput) (practice.HintResult, error) {
	id, err := uuid.Parse(input.ChallengeID)
	if err != nil {
		return practice.HintResult{}, fmt.Errorf("invalid challenge_id: %w", err)
	}
	hint, err := s.practice.Hint(ctx, id, input.CurrentHint)
	if err != nil {
		return practice.HintResult{}, toolError("get hint", err)
	}
	return *hint, nil
}

func (s *Server) handleSubmit(ctx context.Context, input SubmitInput) (practice.SubmissionResult, error) {
	id, err := uuid.Parse(input.ChallengeID)
	if err != nil {
		return practice.SubmissionResult{}, fmt.Errorf("invalid challenge_id: %w", err)
	}
	res, err := s.practice.Submit(ctx, s.user(input.UserID), practice.SubmitRequest{
		ChallengeID:      id,
		Answer:           input.Answer,
		HintsUsed:        input.HintsUsed,
		TimeTakenSeconds: input.TimeTakenSeconds,
	})
	if err != nil {
		return practice.SubmissionResult{}, toolError("submit answer", err)
	}
	return *res, nil
}

func (s *Server) handleProgress(ctx context.Context, input ProgressInput) (ProgressOutput, error) {
	user := s.user(input.UserID)
	if input.Subject != "" {
		detail, err := s.practice.SubjectDetail(ctx, user, input.Subject)
		if err != nil {
			return ProgressOutput{}, toolError("get progress", err)
		}
		return ProgressOutput{Detail: detail}, nil
	}
	ov, err := s.practice.Overview(ctx, user)
	if err != nil {
		return ProgressOutput{}, toolError("get progress", err)
	}
	return ProgressOutput{Overview: ov}, nil
}

func (s *Server) handleStreak(ctx context.Context, input UserInput) (progression.StreakView, error) {
	view, err := s.practice.Streak(ctx, s.user(input.UserID))
	if err != nil {
		return progression.StreakView{}, toolError("get streak", err)
	}
	return view, nil
}

func (s *Server) handleNextDifficulty(ctx context.Context, input DifficultyInput) (DifficultyOutput, error) {
	d, err := s.practice.NextDifficulty(ctx, s.user(input.UserID), input.Subject)
	if err != nil {
		return DifficultyOutput{}, toolError("next difficulty", err)
	}
	return DifficultyOutput{Subject: input.Subject, Difficulty: d}, nil
}

// toolError adds a plain-language cause for the error kinds a tool caller
// can act on.
func toolError(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrConnection):
		return fmt.Errorf("%s: inference backend is unavailable, check that it is running: %w", op, err)
	case errors.Is(err, domain.ErrNoMoreHints):
		return fmt.Errorf("%s: all hints have been shown: %w", op, err)
	case errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("%s: not found: %w", op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
