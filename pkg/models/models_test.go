//go:build unit || !integration

package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampAcceptsNaiveISO(t *testing.T) {
	// the marketplace emits python isoformat values without an offset
	var p Proposal
	err := json.Unmarshal([]byte(`{"instance_id":"i-1","max_bid":0.01,"status":1,"creation_date":"2024-05-01T10:20:30.123456"}`), &p)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 20, 30, 123456000, time.UTC), p.CreationDate.Time)
	assert.Equal(t, ProposalStatusAwarded, p.Status)
}

func TestTimestampAcceptsRFC3339(t *testing.T) {
	var m ChatMessage
	err := json.Unmarshal([]byte(`{"message":"hi","sender":"requester","timestamp":"2024-05-01T10:20:30Z"}`), &m)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC), m.Timestamp.Time)
}

func TestTimestampRejectsGarbage(t *testing.T) {
	var ts Timestamp
	assert.Error(t, ts.UnmarshalJSON([]byte(`"yesterday"`)))
}

func TestChatLastSender(t *testing.T) {
	at := func(sec int) Timestamp {
		return NewTimestamp(time.Date(2024, 5, 1, 0, 0, sec, 0, time.UTC))
	}
	chat := Chat{
		{Sender: SenderRequester, Timestamp: at(2)},
		{Sender: SenderProvider, Timestamp: at(1)},
	}
	assert.Equal(t, SenderRequester, chat.LastSender())
	assert.True(t, chat.HasProviderMessage())

	assert.Empty(t, Chat{}.LastSender())
	assert.False(t, Chat{}.HasProviderMessage())
}

func TestParseAgentType(t *testing.T) {
	assert.Equal(t, AgentTypeAider, ParseAgentType("aider"))
	assert.Equal(t, AgentTypeOpenHands, ParseAgentType("Open-Hands"))
	assert.False(t, IsValidAgentType(ParseAgentType("clippy")))
}

func TestInstanceStatusNames(t *testing.T) {
	assert.Equal(t, "open", InstanceStatusOpen.String())
	assert.Equal(t, "resolved", InstanceStatusResolved.String())
	assert.Equal(t, "status-7", InstanceStatus(7).String())
}
