package sse

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, body string) []Event {
	t.Helper()
	var got []Event
	err := Read(context.Background(), strings.NewReader(body), func(ev Event) (bool, error) {
		got = append(got, ev)
		return false, nil
	})
	require.NoError(t, err)
	return got
}

func TestRead_NamedAndUnnamedEvents(t *testing.T) {
	body := "event: message_start\ndata: {\"a\":1}\n\n: keep-alive\n\ndata: {\"b\":2}\n\n"

	got := collect(t, body)

	require.Len(t, got, 2)
	assert.Equal(t, Event{Name: "message_start", Data: `{"a":1}`}, got[0])
	assert.Equal(t, Event{Data: `{"b":2}`}, got[1])
}

func TestRead_MultiLineDataAndTrailingEvent(t *testing.T) {
	body := "data: first\ndata: second\n\ndata:no-space"

	got := collect(t, body)

	require.Len(t, got, 2)
	assert.Equal(t, "first\nsecond", got[0].Data)
	assert.Equal(t, "no-space", got[1].Data)
}

func TestRead_StopAndError(t *testing.T) {
	body := "data: 1\n\ndata: [DONE]\n\ndata: 3\n\n"
	var seen []string
	err := Read(context.Background(), strings.NewReader(body), func(ev Event) (bool, error) {
		seen = append(seen, ev.Data)
		return ev.Data == "[DONE]", nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "[DONE]"}, seen)

	boom := errors.New("boom")
	err = Read(context.Background(), strings.NewReader(body), func(Event) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestRead_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Read(ctx, strings.NewReader("data: 1\n\n"), func(Event) (bool, error) { return false, nil })

	assert.ErrorIs(t, err, context.Canceled)
}
