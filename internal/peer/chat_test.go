package peer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestChat_Text(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)

	data, err := EncodeText("hello from Lima", at)
	require.NoError(t, err)

	ev, err := DecodeChat(data)
	require.NoError(t, err)
	assert.Equal(t, ChatTypeText, ev.Type)
	assert.Equal(t, "hello from Lima", ev.Text.Body)
	assert.Equal(t, at.UnixMilli(), ev.Text.SentAt)
}

func TestChat_Bye(t *testing.T) {
	data, err := EncodeBye()
	require.NoError(t, err)

	ev, err := DecodeChat(data)
	require.NoError(t, err)
	assert.Equal(t, ChatTypeBye, ev.Type)
}

func TestChat_Rejects(t *testing.T) {
	unknown, err := msgpack.Marshal(ChatEnvelope{Type: "file"})
	require.NoError(t, err)

	_, err = DecodeChat(unknown)
	assert.ErrorIs(t, err, ErrUnexpectedSignal)

	_, err = DecodeChat([]byte{0xc1})
	assert.Error(t, err)
}

func TestError_Format(t *testing.T) {
	err := WrapError("connect to partner", ErrTimeout, "data channel did not open")

	assert.Equal(t, "connect to partner: timeout (data channel did not open)", err.Error())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "send offer: partner left", NewError("send offer", ErrPeerLeft).Error())
}
