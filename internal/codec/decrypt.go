package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/austinmesh/bridger/pkg/meshpb"
)

// Key decodes a base64-encoded 16-byte AES-128 shared secret, as configured
// via MESHTASTIC_KEY.
func Key(base64Key string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("codec: decode key: %w", err)
	}
	if len(key) != 16 {
		return nil, fmt.Errorf("codec: key must decode to 16 bytes, got %d", len(key))
	}
	return key, nil
}

// nonce builds the 16-byte AES-CTR nonce: packetID as little-endian u64
// concatenated with fromNode as little-endian u64. This encoding is part of
// the wire contract and must be preserved bit-exact.
func nonce(fromNode, packetID uint32) []byte {
	n := make([]byte, 16)
	binary.LittleEndian.PutUint64(n[0:8], uint64(packetID))
	binary.LittleEndian.PutUint64(n[8:16], uint64(fromNode))
	return n
}

// Decrypt runs AES-128-CTR over env.Packet.Encrypted and parses the result
// as an inner Data message, writing it to env.Packet.Decoded. It is a
// no-op if the packet is already decoded or carries no Encrypted bytes.
// PKI-channel packets are never decrypted and are reported as a
// ProcessingError.
func Decrypt(key []byte, env *meshpb.ServiceEnvelope) error {
	if env.Packet == nil || env.Packet.Decoded != nil || len(env.Packet.Encrypted) == 0 {
		return nil
	}

	if env.ChannelID == PKIChannelID {
		return &ProcessingError{Kind: KindPKIRefused, Reason: "PKI channel packets are not decryptable by this bridge"}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return &ProcessingError{Kind: KindDecryptFailed, Reason: fmt.Sprintf("construct AES cipher: %v", err)}
	}

	n := nonce(env.Packet.From, env.Packet.ID)
	stream := cipher.NewCTR(block, n)

	plaintext := make([]byte, len(env.Packet.Encrypted))
	stream.XORKeyStream(plaintext, env.Packet.Encrypted)

	data, err := meshpb.UnmarshalData(plaintext)
	if err != nil {
		return &ProcessingError{Kind: KindDecryptFailed, Reason: fmt.Sprintf("decrypted payload is not a valid Data message: %v", err)}
	}

	env.Packet.Decoded = data
	return nil
}
