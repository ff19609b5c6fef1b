package stream

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSSEWriterFrames(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewSSEWriter(buf, nil)

	require.NoError(t, w.Write(Status("cloning", nil)))
	require.NoError(t, w.Write(Completion("done", nil)))

	frames := strings.Split(strings.TrimSuffix(buf.String(), "\n\n"), "\n\n")
	require.Len(t, frames, 2)
	for _, frame := range frames {
		require.True(t, strings.HasPrefix(frame, "data: "))
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &ev))
	}
}

func TestNDJSONWriterOneObjectPerLine(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewNDJSONWriter(buf, nil)

	require.NoError(t, w.Write(Info("hello")))
	require.NoError(t, w.Write(Error("boom")))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	var last Event
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &last))
	require.Equal(t, KindError, last.Type)
	require.True(t, last.Fatal)
}

func TestWriterRejectsOversizedEvent(t *testing.T) {
	big := Event{Type: KindCommandOutput, Output: strings.Repeat("x", MaxRecordSize+1)}

	require.Error(t, NewSSEWriter(&bytes.Buffer{}, nil).Write(big))
	require.Error(t, NewNDJSONWriter(&bytes.Buffer{}, nil).Write(big))
}

func TestEventOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(Info("minimal"))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"info","message":"minimal"}`, string(data))
}
