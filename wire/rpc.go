package wire

// RPC connection preamble and header messages (hadoop.common.RpcHeader /
// IpcConnectionContext / ProtobufRpcEngine2).

// Connection preamble.
const (
	RPCVersion       = 9
	ServiceClass     = 0
	AuthProtocolNone = 0x00
	AuthProtocolSASL = 0xDF // -33 on the wire

	// Reserved call ids.
	CallIDSASL              = -33
	CallIDConnectionContext = -3

	// RPC kind and operation for protobuf RPCs.
	RPCKindProtobuf   = 2
	RPCOpFinalPacket  = 0
	ProtocolClass     = "org.apache.hadoop.hdfs.protocol.ClientProtocol"
	ProtocolVersion   = 1
	HandshakeMagic    = "hrpc"
	InvalidRetryCount = -1
)

// RPCRequestHeader is RpcRequestHeaderProto.
type RPCRequestHeader struct {
	Kind       int32  // 1
	Op         int32  // 2
	CallID     int32  // 3 (sint32)
	ClientID   []byte // 4
	RetryCount int32  // 5 (sint32)
}

func (m *RPCRequestHeader) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(m.Kind))
	b = appendVarintField(b, 2, uint64(m.Op))
	b = appendSintField(b, 3, int64(m.CallID))
	b = appendBytesField(b, 4, m.ClientID)
	b = appendSintField(b, 5, int64(m.RetryCount))
	return b
}

func (m *RPCRequestHeader) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Kind = int32(d.varint(typ))
		case 2:
			m.Op = int32(d.varint(typ))
		case 3:
			m.CallID = int32(d.sint(typ))
		case 4:
			m.ClientID = d.bytes(typ)
		case 5:
			m.RetryCount = int32(d.sint(typ))
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// Response status values.
const (
	RPCStatusSuccess = 0
	RPCStatusError   = 1
	RPCStatusFatal   = 2
)

// RPCResponseHeader is RpcResponseHeaderProto.
type RPCResponseHeader struct {
	CallID        uint32 // 1
	Status        int32  // 2
	ServerVersion uint32 // 3
	Exception     string // 4
	ErrorMessage  string // 5
	ErrorDetail   int32  // 6
	ClientID      []byte // 7
	RetryCount    int32  // 8 (sint32)
}

func (m *RPCResponseHeader) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(m.CallID))
	b = appendVarintField(b, 2, uint64(m.Status))
	if m.Exception != "" {
		b = appendStringField(b, 4, m.Exception)
	}
	if m.ErrorMessage != "" {
		b = appendStringField(b, 5, m.ErrorMessage)
	}
	if len(m.ClientID) > 0 {
		b = appendBytesField(b, 7, m.ClientID)
	}
	return b
}

func (m *RPCResponseHeader) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.CallID = uint32(d.varint(typ))
		case 2:
			m.Status = int32(d.varint(typ))
		case 3:
			m.ServerVersion = uint32(d.varint(typ))
		case 4:
			m.Exception = d.string(typ)
		case 5:
			m.ErrorMessage = d.string(typ)
		case 6:
			m.ErrorDetail = int32(d.varint(typ))
		case 7:
			m.ClientID = d.bytes(typ)
		case 8:
			m.RetryCount = int32(d.sint(typ))
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// RequestHeader is RequestHeaderProto, naming the method of one call.
type RequestHeader struct {
	MethodName      string // 1
	ProtocolName    string // 2
	ProtocolVersion uint64 // 3
}

func (m *RequestHeader) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.MethodName)
	b = appendStringField(b, 2, m.ProtocolName)
	b = appendVarintField(b, 3, m.ProtocolVersion)
	return b
}

func (m *RequestHeader) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.MethodName = d.string(typ)
		case 2:
			m.ProtocolName = d.string(typ)
		case 3:
			m.ProtocolVersion = d.varint(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// UserInformation is UserInformationProto.
type UserInformation struct {
	EffectiveUser string // 1
	RealUser      string // 2
}

func (m *UserInformation) Marshal() []byte {
	var b []byte
	if m.EffectiveUser != "" {
		b = appendStringField(b, 1, m.EffectiveUser)
	}
	if m.RealUser != "" {
		b = appendStringField(b, 2, m.RealUser)
	}
	return b
}

func (m *UserInformation) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.EffectiveUser = d.string(typ)
		case 2:
			m.RealUser = d.string(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// ConnectionContext is IpcConnectionContextProto, sent once after the
// handshake (and after SASL, when negotiated).
type ConnectionContext struct {
	UserInfo *UserInformation // 2
	Protocol string           // 3
}

func (m *ConnectionContext) Marshal() []byte {
	var b []byte
	if m.UserInfo != nil {
		b = appendMessageField(b, 2, m.UserInfo)
	}
	b = appendStringField(b, 3, m.Protocol)
	return b
}

func (m *ConnectionContext) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 2:
			m.UserInfo = &UserInformation{}
			d.message(typ, m.UserInfo)
		case 3:
			m.Protocol = d.string(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// SASL negotiation states (RpcSaslProto.SaslState).
const (
	SASLStateSuccess   = 0
	SASLStateNegotiate = 1
	SASLStateInitiate  = 2
	SASLStateChallenge = 3
	SASLStateResponse  = 4
	SASLStateWrap      = 5
)

// SASLAuth is RpcSaslProto.SaslAuth, one mechanism the server offers.
type SASLAuth struct {
	Method    string // 1
	Mechanism string // 2
	Protocol  string // 3
	ServerID  string // 4
	Challenge []byte // 5
}

func (m *SASLAuth) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.Method)
	b = appendStringField(b, 2, m.Mechanism)
	if m.Protocol != "" {
		b = appendStringField(b, 3, m.Protocol)
	}
	if m.ServerID != "" {
		b = appendStringField(b, 4, m.ServerID)
	}
	if len(m.Challenge) > 0 {
		b = appendBytesField(b, 5, m.Challenge)
	}
	return b
}

func (m *SASLAuth) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Method = d.string(typ)
		case 2:
			m.Mechanism = d.string(typ)
		case 3:
			m.Protocol = d.string(typ)
		case 4:
			m.ServerID = d.string(typ)
		case 5:
			m.Challenge = d.bytes(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// SASLMessage is RpcSaslProto.
type SASLMessage struct {
	Version int32       // 1 (sint32)
	State   int32       // 2
	Token   []byte      // 3
	Auths   []*SASLAuth // 4
}

func (m *SASLMessage) Marshal() []byte {
	var b []byte
	b = appendSintField(b, 1, int64(m.Version))
	b = appendVarintField(b, 2, uint64(m.State))
	if len(m.Token) > 0 {
		b = appendBytesField(b, 3, m.Token)
	}
	for _, a := range m.Auths {
		b = appendMessageField(b, 4, a)
	}
	return b
}

func (m *SASLMessage) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Version = int32(d.sint(typ))
		case 2:
			m.State = int32(d.varint(typ))
		case 3:
			m.Token = d.bytes(typ)
		case 4:
			a := &SASLAuth{}
			d.message(typ, a)
			m.Auths = append(m.Auths, a)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}
