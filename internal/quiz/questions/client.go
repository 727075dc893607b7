package questions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultBaseURL = "https://quizapi.io/api/v1/questions"

// ClientConfig configures the quizapi.io client.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Difficulty string
	// QuestionSeconds is stamped onto every fetched question; the provider
	// has no notion of a per-question countdown.
	QuestionSeconds int
	Timeout         time.Duration
	// Shuffle randomizes option order. Defaults to rand.Shuffle; tests
	// inject a deterministic one.
	Shuffle func(n int, swap func(i, j int))
}

// Client fetches multiple-choice questions from quizapi.io.
type Client struct {
	baseURL    string
	apiKey     string
	difficulty string
	seconds    int
	shuffle    func(n int, swap func(i, j int))
	client     *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Difficulty == "" {
		cfg.Difficulty = "Medium"
	}
	if cfg.QuestionSeconds <= 0 {
		cfg.QuestionSeconds = 15
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Shuffle == nil {
		cfg.Shuffle = rand.Shuffle
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		difficulty: cfg.Difficulty,
		seconds:    cfg.QuestionSeconds,
		shuffle:    cfg.Shuffle,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

// apiQuestion mirrors the provider's answer-key layout: up to six nullable
// answers plus a parallel map of "answer_x_correct" flags.
type apiQuestion struct {
	Question       string             `json:"question"`
	Answers        map[string]*string `json:"answers"`
	CorrectAnswers map[string]string  `json:"correct_answers"`
}

// Fetch returns up to limit questions. Any failure is logged and collapses
// to an empty batch so a provider outage can never fault the orchestrator.
func (c *Client) Fetch(ctx context.Context, limit int) []Question {
	body, err := c.get(ctx, limit)
	if err != nil {
		log.Warn().Err(err).Msg("question fetch failed")
		return nil
	}

	var raw []apiQuestion
	if err := json.Unmarshal(body, &raw); err != nil {
		log.Warn().Err(err).Msg("question fetch returned malformed body")
		return nil
	}

	questions := make([]Question, 0, len(raw))
	for _, q := range raw {
		parsed, ok := c.parse(q)
		if !ok {
			log.Debug().Str("question", q.Question).Msg("skipping question with no resolvable correct answer")
			continue
		}
		questions = append(questions, parsed)
	}
	return questions
}

func (c *Client) get(ctx context.Context, limit int) ([]byte, error) {
	params := url.Values{}
	params.Set("apiKey", c.apiKey)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("difficulty", c.difficulty)
	params.Set("type", "multiple")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request questions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("question API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

func (c *Client) parse(q apiQuestion) (Question, bool) {
	if q.Question == "" {
		return Question{}, false
	}

	correctKey := ""
	for key, flag := range q.CorrectAnswers {
		if flag == "true" {
			correctKey = strings.TrimSuffix(key, "_correct")
			break
		}
	}
	if correctKey == "" {
		return Question{}, false
	}
	correct := q.Answers[correctKey]
	if correct == nil || *correct == "" {
		return Question{}, false
	}

	options := make([]string, 0, len(q.Answers))
	for _, v := range q.Answers {
		if v != nil && *v != "" {
			options = append(options, *v)
		}
	}
	// Map iteration order is already random, but shuffle explicitly so the
	// randomization is owned here and injectable.
	c.shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})

	return Question{
		Prompt:        q.Question,
		Options:       options,
		CorrectAnswer: *correct,
		Seconds:       c.seconds,
	}, true
}
