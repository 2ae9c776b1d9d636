package backend

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelline/deskhand/internal/conversation"
)

func TestContent_MarshalPlainText(t *testing.T) {
	data, err := json.Marshal(TextContent("hello"))
	require.NoError(t, err)
	assert.Equal(t, `"hello"`, string(data))
}

func TestContent_MarshalParts(t *testing.T) {
	c := PartsContent(
		Part{Type: "text", Text: "look at this"},
		Part{Type: "image_url", ImageURL: &ImageURL{URL: "data:image/png;base64,AAAA"}},
	)
	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"type":"text","text":"look at this"},
		{"type":"image_url","image_url":{"url":"data:image/png;base64,AAAA"}}
	]`, string(data))
}

func TestContent_UnmarshalBothForms(t *testing.T) {
	var c Content
	require.NoError(t, json.Unmarshal([]byte(`"plain"`), &c))
	assert.Equal(t, "plain", c.Text)
	assert.Nil(t, c.Parts)

	require.NoError(t, json.Unmarshal([]byte(`[{"type":"text","text":"a"}]`), &c))
	assert.Empty(t, c.Text)
	require.Len(t, c.Parts, 1)
	assert.Equal(t, "a", c.Parts[0].Text)
}

func TestContent_UnmarshalNull(t *testing.T) {
	// Assistant messages carrying tool calls often have null content.
	var c Content
	require.NoError(t, json.Unmarshal([]byte(`null`), &c))
	assert.Empty(t, c.Text)
	assert.Nil(t, c.Parts)
}

func TestFromTurns(t *testing.T) {
	msgs := FromTurns([]conversation.Turn{
		{Role: conversation.RoleUser, Content: "q"},
		{Role: conversation.RoleAssistant, Content: "a"},
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "q", msgs[0].Content.Text)
	assert.Equal(t, "assistant", msgs[1].Role)
}

func TestErrorKinds(t *testing.T) {
	err := Errorf(KindConfig, "missing key")
	assert.True(t, IsKind(err, KindConfig))
	assert.Equal(t, "missing key", err.Error())

	wrapped := Errorf(KindTransport, "request failed: %w", err)
	assert.Equal(t, KindTransport, KindOf(wrapped))

	// Unclassified errors default to transport.
	assert.Equal(t, KindTransport, KindOf(json.Unmarshal([]byte("x"), &struct{}{})))
}
