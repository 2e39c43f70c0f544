// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// ID TESTS
// =============================================================================

func TestID_DecodesNumbersAndStrings(t *testing.T) {
	var kb struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 42, "b": "abc", "c": null}`), &kb))
	require.Equal(t, ID("42"), kb.A)
	require.Equal(t, ID("abc"), kb.B)
	require.True(t, kb.C.IsZero())
}

func TestID_EncodesIntegersAsNumbers(t *testing.T) {
	data, err := json.Marshal([]ID{"7", "x-1"})
	require.NoError(t, err)
	require.JSONEq(t, `[7, "x-1"]`, string(data))
}

func TestIDs_SkipsBlanks(t *testing.T) {
	require.Equal(t, []ID{"1", "2"}, IDs("1", " ", "2"))
}

// =============================================================================
// TIMESTAMP TESTS
// =============================================================================

func TestTimestamp_Layouts(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"rfc3339", `"2024-05-01T10:00:00Z"`, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"naive micros", `"2024-05-01T10:00:00.123456"`, time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC)},
		{"space separated", `"2024-05-01 10:00:00"`, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"date only", `"2024-05-01"`, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"unix", `1714557600`, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &ts))
			require.True(t, tc.want.Equal(ts.Time), "got %v", ts.Time)
		})
	}
}

func TestTimestamp_Invalid(t *testing.T) {
	var ts Timestamp
	require.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

// =============================================================================
// DOCUMENT TESTS
// =============================================================================

func TestDocument_Decode(t *testing.T) {
	raw := `{"id": 3, "knowledge_base_id": 9, "name": "Report.PDF", "size": 2048,
		"enabled": true, "parsing_status": "completed", "uploaded_at": "2024-05-01T10:00:00Z", "parsed_pages": 12}`
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	require.Equal(t, ID("3"), doc.ID)
	require.Equal(t, ID("9"), doc.KnowledgeBaseID)
	require.Equal(t, ParsingDone, doc.ParsingStatus)
	require.Equal(t, "pdf", doc.Extension())
	require.Equal(t, 12, doc.Pages())
	require.False(t, doc.IsParsing())
}

func TestNormalizeParsingStatus(t *testing.T) {
	require.Equal(t, ParsingPending, NormalizeParsingStatus(""))
	require.Equal(t, ParsingProcessing, NormalizeParsingStatus("Processing"))
	require.Equal(t, ParsingFailed, NormalizeParsingStatus("error"))
	require.True(t, ParsingFailed.IsTerminal())
	require.False(t, ParsingPending.IsTerminal())
}

// =============================================================================
// CHAT TESTS
// =============================================================================

func TestSendResult_Decode(t *testing.T) {
	raw := `{"user_message": {"id": 1, "role": "user", "content": "hi"},
		"assistant_message": {"id": 2, "role": "assistant", "content": "**hello**"}}`
	var res SendResult
	require.NoError(t, json.Unmarshal([]byte(raw), &res))
	require.True(t, res.UserMessage.IsUser())
	require.True(t, res.AssistantMessage.IsAssistant())
	require.Equal(t, "Assistant", res.AssistantMessage.Role.DisplayName())
}

func TestChat_BoundTo(t *testing.T) {
	c := Chat{KnowledgeBaseIDs: IDs("1", "2")}
	require.True(t, c.BoundTo("2"))
	require.False(t, c.BoundTo("3"))
}

func TestMessage_Preview(t *testing.T) {
	m := Message{Content: "line one\n\nline   two is longer"}
	require.Equal(t, "line one line...", m.Preview(16))
}
