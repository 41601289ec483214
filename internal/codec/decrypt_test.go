package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/austinmesh/bridger/pkg/meshpb"
)

const testKeyBase64 = "1PG7OiApB1nwvP+rz05pAQ=="

func TestNonceGeneration(t *testing.T) {
	n := nonce(1129710788, 812977943)
	expected := "170f753000000000c404564300000000"
	assert.Equal(t, expected, hex.EncodeToString(n))
}

func TestDecryptVector(t *testing.T) {
	key, err := Key(testKeyBase64)
	require.NoError(t, err)

	ciphertext := []byte{
		0xc0, 0x57, 0xf2, 0xf2, 0x94, 0x81, 0x60, 0xf6, 0xd7, 0xe7, 0xb6, 0xc5, 0x3e, 0x70, 0xa2, 0xb8,
		0x00, 0x9b, 0x75, 0x8e, 0xaf, 0xfd, 0xc1, 0x74, 0x9f, 0x0a, 0x1c, 0x72, 0xd1, 0x6d,
	}
	expectedPlaintext := []byte{
		0x08, 0x03, 0x12, 0x15, 0x0d, 0x00, 0x80, 0x02, 0x12, 0x15, 0x00, 0x80, 0xb6, 0xc5, 0x18, 0xc4,
		0x01, 0x25, 0xef, 0x49, 0xde, 0x66, 0xb8, 0x01, 0x10, 0x35, 0xd3, 0xd0, 0x3c, 0x70,
	}

	env := &meshpb.ServiceEnvelope{
		ChannelID: "LongFast",
		Packet: &meshpb.MeshPacket{
			From:      1129710788,
			ID:        812977943,
			Encrypted: ciphertext,
		},
	}

	err = Decrypt(key, env)
	require.NoError(t, err)
	require.NotNil(t, env.Packet.Decoded)

	// Re-derive the raw decrypted bytes to compare against the vector
	// bit-exact, independent of how UnmarshalData interprets them.
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	stream := cipher.NewCTR(block, nonce(1129710788, 812977943))
	got := make([]byte, len(ciphertext))
	stream.XORKeyStream(got, ciphertext)
	assert.Equal(t, expectedPlaintext, got)
}

func TestDecryptRefusesPKIChannel(t *testing.T) {
	key, err := Key(testKeyBase64)
	require.NoError(t, err)

	env := &meshpb.ServiceEnvelope{
		ChannelID: PKIChannelID,
		Packet: &meshpb.MeshPacket{
			Encrypted: []byte{0x01, 0x02, 0x03},
		},
	}

	err = Decrypt(key, env)
	require.Error(t, err)
	var procErr *ProcessingError
	require.ErrorAs(t, err, &procErr)
}

func TestDecryptNoOpWhenAlreadyDecoded(t *testing.T) {
	key, err := Key(testKeyBase64)
	require.NoError(t, err)

	env := &meshpb.ServiceEnvelope{
		Packet: &meshpb.MeshPacket{
			Decoded: &meshpb.Data{PortNum: meshpb.PortTextMessage},
		},
	}

	err = Decrypt(key, env)
	require.NoError(t, err)
	assert.Equal(t, meshpb.PortTextMessage, env.Packet.Decoded.PortNum)
}
