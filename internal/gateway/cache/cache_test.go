package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interpharma-gateway/internal/models"
)

func sampleAnswer() *models.FinalAnswer {
	return &models.FinalAnswer{
		NormalizedAnswer: models.NormalizedAnswer{
			Kind:     models.KindStructured,
			Sections: &models.Sections{Overview: "Metformin overview", KeyPoints: "Biguanide"},
		},
		Disclaimer: "disclaimer",
		ModelLabel: models.LabelProvider,
		Cached:     true,
	}
}

func TestKey_DependsOnEveryInput(t *testing.T) {
	base, err := models.NewQuery("Explain metformin", "Student", "en")
	require.NoError(t, err)

	other := base
	other.Mode = models.ModePharmacist
	french := base
	french.Language = "fr"
	report := base.WithReport(models.ReportDetails{Disease: "Diabetes"})

	keys := map[string]bool{
		Key(models.PersonaMedicalChat, base):   true,
		Key(models.PersonaPharmaChat, base):    true,
		Key(models.PersonaMedicalChat, other):  true,
		Key(models.PersonaMedicalChat, french): true,
		Key(models.PersonaReport, report):      true,
	}
	assert.Len(t, keys, 5)
	assert.Equal(t, Key(models.PersonaMedicalChat, base), Key(models.PersonaMedicalChat, base))
}

func TestRedisCache_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewRedisCache(client, 30*time.Second, "answer:")
	ctx := context.Background()

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, "k", sampleAnswer()))
	assert.Equal(t, 30*time.Second, mr.TTL("answer:k"))

	got, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Metformin overview", got.Sections.Overview)
	assert.Equal(t, models.LabelProvider, got.ModelLabel)
	assert.False(t, got.Cached, "the cached flag is set by the reader, not stored")

	mr.FastForward(31 * time.Second)
	got, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCache_CorruptEntryIsMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	require.NoError(t, mr.Set("answer:k", "{not json"))

	got, err := NewRedisCache(client, time.Second, "answer:").Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCache_Errors(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisCache(client, 30*time.Second, "answer:")

	mock.ExpectGet("answer:k").SetErr(errors.New("i/o timeout"))
	_, err := c.Get(context.Background(), "k")
	assert.EqualError(t, err, "i/o timeout")

	stored := *sampleAnswer()
	stored.Cached = false
	raw, err := json.Marshal(stored)
	require.NoError(t, err)
	mock.ExpectSet("answer:k", raw, 30*time.Second).SetErr(errors.New("READONLY"))
	assert.EqualError(t, c.Set(context.Background(), "k", sampleAnswer()), "READONLY")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoop(t *testing.T) {
	var c Cache = Noop{}
	require.NoError(t, c.Set(context.Background(), "k", sampleAnswer()))
	got, err := c.Get(context.Background(), "k")
	assert.NoError(t, err)
	assert.Nil(t, got)
}
