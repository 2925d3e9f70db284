// Package sub implements subscriber-side topic transport: per-publisher
// link state machines driven by a cooperative tick, and the topic that
// reconciles publisher membership and fans messages out to listeners.
package sub

// TransportTCPROS is the only data transport offered during
// negotiation; any other negotiated name is rejected.
const TransportTCPROS = "TCPROS"

// Message is one decoded message as produced by a MessageType.
type Message any

// MessageType is the schema collaborator: it names the content type,
// fingerprints it for handshake verification, and decodes payloads.
type MessageType interface {
	Name() string
	MD5Sum() string
	Unmarshal(payload []byte) (Message, error)
}

// RawType passes payloads through undecoded. Useful for tooling that
// inspects or forwards traffic without knowing the schema.
type RawType struct {
	TypeName string
	Digest   string
}

func (t RawType) Name() string   { return t.TypeName }
func (t RawType) MD5Sum() string { return t.Digest }

func (t RawType) Unmarshal(payload []byte) (Message, error) {
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}
