package transport

import (
	"errors"
	"fmt"

	"github.com/peakfs/hdfsclient/wire"
)

// SASL negotiation runs synchronously during Connect, before the read loop
// starts, on the reserved call id. The server drives the state machine:
// NEGOTIATE lists mechanisms, the client INITIATEs one, then answers any
// CHALLENGEs until SUCCESS.

const saslMechanismGSSAPI = "GSSAPI"

var errNoMechanism = errors.New("server offered no supported sasl mechanism")

func (c *Conn) negotiateSASL() error {
	if err := c.writeSASL(&wire.SASLMessage{State: wire.SASLStateNegotiate}); err != nil {
		return err
	}
	msg, err := c.readSASL()
	if err != nil {
		return err
	}
	if msg.State != wire.SASLStateNegotiate {
		return fmt.Errorf("unexpected sasl state %d", msg.State)
	}

	var chosen *wire.SASLAuth
	for _, auth := range msg.Auths {
		if auth.Mechanism == saslMechanismGSSAPI {
			chosen = auth
			break
		}
	}
	if chosen == nil {
		return errNoMechanism
	}

	gss, err := newGSSAPIContext(c.opts.Kerberos, c.spnFor(chosen))
	if err != nil {
		return err
	}
	initial, err := gss.initialToken()
	if err != nil {
		return err
	}

	err = c.writeSASL(&wire.SASLMessage{
		State: wire.SASLStateInitiate,
		Token: initial,
		Auths: []*wire.SASLAuth{chosen},
	})
	if err != nil {
		return err
	}

	for {
		msg, err = c.readSASL()
		if err != nil {
			return err
		}
		switch msg.State {
		case wire.SASLStateChallenge:
			token, err := gss.respond(msg.Token)
			if err != nil {
				return err
			}
			err = c.writeSASL(&wire.SASLMessage{State: wire.SASLStateResponse, Token: token})
			if err != nil {
				return err
			}
		case wire.SASLStateSuccess:
			return nil
		default:
			return fmt.Errorf("unexpected sasl state %d", msg.State)
		}
	}
}

// spnFor builds the service principal from the server's advertised protocol
// and server id, falling back to the configured principal.
func (c *Conn) spnFor(auth *wire.SASLAuth) string {
	if auth.Protocol != "" && auth.ServerID != "" {
		return auth.Protocol + "/" + auth.ServerID
	}
	return c.opts.ServicePrincipal
}

func (c *Conn) writeSASL(msg *wire.SASLMessage) error {
	header := &wire.RPCRequestHeader{
		Kind:       wire.RPCKindProtobuf,
		Op:         wire.RPCOpFinalPacket,
		CallID:     wire.CallIDSASL,
		ClientID:   c.opts.ClientID,
		RetryCount: wire.InvalidRetryCount,
	}
	return c.writeFrame(header, msg)
}

func (c *Conn) readSASL() (*wire.SASLMessage, error) {
	frame, err := readFrame(c.netConn)
	if err != nil {
		return nil, err
	}
	header := &wire.RPCResponseHeader{}
	payload, err := wire.ConsumePrefixed(frame, header)
	if err != nil {
		return nil, err
	}
	if header.Status != wire.RPCStatusSuccess {
		return nil, fmt.Errorf("sasl rejected: %s: %s", header.Exception, header.ErrorMessage)
	}
	msg := &wire.SASLMessage{}
	if _, err := wire.ConsumePrefixed(payload, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
