package mock

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellivoid/coffeehouse-api/internal/coffeehouse"
)

func newEngine() *Engine {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEngine_Sentiment(t *testing.T) {
	e := newEngine()

	result, err := e.Sentiment(context.Background(), "I love this, it is great")
	require.NoError(t, err)
	assert.Equal(t, "positive", result.Label)

	result, err = e.Sentiment(context.Background(), "this is terrible and I hate it")
	require.NoError(t, err)
	assert.Equal(t, "negative", result.Label)

	total := 0.0
	for _, p := range result.Predictions {
		total += p
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.Equal(t, 2, e.Calls("sentiment"))
}

func TestEngine_DetectLanguage(t *testing.T) {
	e := newEngine()

	result, err := e.DetectLanguage(context.Background(), "Bonjour, je suis le chat")
	require.NoError(t, err)
	assert.Equal(t, "fr", result.Label)

	_, err = e.DetectLanguage(context.Background(), "12345 !!!")
	assert.ErrorIs(t, err, coffeehouse.ErrLanguageUnidentifiable)
}

func TestEngine_NamedEntities(t *testing.T) {
	e := newEngine()

	entities, err := e.NamedEntities(context.Background(), "yesterday Alice met NASA in 1969.")
	require.NoError(t, err)
	require.Len(t, entities, 3)
	assert.Equal(t, coffeehouse.Entity{Text: "Alice", Type: "PERSON", Start: 10, End: 15}, entities[0])
	assert.Equal(t, "MISC", entities[1].Type)
	assert.Equal(t, "DATE", entities[2].Type)
	assert.Equal(t, "1969", entities[2].Text)
}

func TestEngine_SplitSentences(t *testing.T) {
	e := newEngine()

	sentences, err := e.SplitSentences(context.Background(), "Hello there. How are you?  Fine")
	require.NoError(t, err)
	require.Len(t, sentences, 3)
	assert.Equal(t, "Hello there.", sentences[0].Text)
	assert.Equal(t, "How are you?", sentences[1].Text)
	assert.Equal(t, 13, sentences[1].Offset)
	assert.Equal(t, "Fine", sentences[2].Text)
}

func TestEngine_LydiaSessions(t *testing.T) {
	e := newEngine()

	session, err := e.CreateSession(context.Background(), "en")
	require.NoError(t, err)
	assert.Len(t, session.ID, 32)

	reply, err := e.Think(context.Background(), session.ID, "hi")
	require.NoError(t, err)
	assert.Equal(t, "You said: hi", reply.Output)

	_, err = e.Think(context.Background(), "missing", "hi")
	assert.ErrorIs(t, err, coffeehouse.ErrSessionNotFound)
}

func TestEngine_Failures(t *testing.T) {
	e := newEngine()
	e.Unavailable = true

	_, err := e.SpamPrediction(context.Background(), "free prize")
	assert.ErrorIs(t, err, coffeehouse.ErrUnavailable)

	e.Unavailable = false
	boom := errors.New("boom")
	e.SetFailure(boom)
	_, err = e.PartOfSpeech(context.Background(), "hello")
	assert.ErrorIs(t, err, boom)
}
