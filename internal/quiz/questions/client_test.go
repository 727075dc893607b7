package questions_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quizroom/quizroom/internal/quiz/questions"
)

const providerBody = `[
	{
		"question": "Which HTTP status code means Not Found?",
		"answers": {
			"answer_a": "404",
			"answer_b": "200",
			"answer_c": "500",
			"answer_d": null,
			"answer_e": null,
			"answer_f": null
		},
		"correct_answers": {
			"answer_a_correct": "true",
			"answer_b_correct": "false",
			"answer_c_correct": "false",
			"answer_d_correct": "false",
			"answer_e_correct": "false",
			"answer_f_correct": "false"
		}
	},
	{
		"question": "Orphaned answer key",
		"answers": {
			"answer_a": "yes",
			"answer_b": "no"
		},
		"correct_answers": {
			"answer_a_correct": "false",
			"answer_b_correct": "false"
		}
	}
]`

func newTestClient(t *testing.T, handler http.HandlerFunc) *questions.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return questions.NewClient(questions.ClientConfig{
		BaseURL:         srv.URL,
		APIKey:          "test-key",
		QuestionSeconds: 20,
		Shuffle:         func(int, func(i, j int)) {},
	})
}

func TestFetchParsesProviderBatch(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(providerBody))
	})

	qs := client.Fetch(context.Background(), 10)

	require.Len(t, qs, 1, "question with no true flag is dropped")
	q := qs[0]
	require.Equal(t, "Which HTTP status code means Not Found?", q.Prompt)
	require.Equal(t, "404", q.CorrectAnswer)
	require.ElementsMatch(t, []string{"404", "200", "500"}, q.Options, "null answers are excluded")
	require.Equal(t, 20, q.Seconds)

	require.Contains(t, gotQuery, "apiKey=test-key")
	require.Contains(t, gotQuery, "limit=10")
	require.Contains(t, gotQuery, "difficulty=Medium")
	require.Contains(t, gotQuery, "type=multiple")
}

func TestFetchFailsOpenOnServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	require.Empty(t, client.Fetch(context.Background(), 10))
}

func TestFetchFailsOpenOnMalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"not a list"}`))
	})

	require.Empty(t, client.Fetch(context.Background(), 10))
}

func TestFetchFailsOpenOnCancelledContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(providerBody))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Empty(t, client.Fetch(ctx, 10))
}

func TestStaticSourceCapsAtLimit(t *testing.T) {
	src := &questions.Static{Questions: []questions.Question{
		{Prompt: "one"}, {Prompt: "two"}, {Prompt: "three"},
	}}

	require.Len(t, src.Fetch(context.Background(), 2), 2)
	require.Len(t, src.Fetch(context.Background(), 10), 3)
	require.Empty(t, src.Fetch(context.Background(), 0))
}
