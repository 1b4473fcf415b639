package transport

import (
	"errors"
	"fmt"

	krb "github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/gssapi"
	"github.com/jcmturner/gokrb5/v8/iana/keyusage"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/spnego"
	"github.com/jcmturner/gokrb5/v8/types"
)

// gssapiContext holds the Kerberos state for one connection's GSSAPI
// exchange: the service ticket and session key obtained for the namenode's
// principal.
type gssapiContext struct {
	client     *krb.Client
	spn        string
	ticket     messages.Ticket
	sessionKey types.EncryptionKey
}

func newGSSAPIContext(client *krb.Client, spn string) (*gssapiContext, error) {
	if client == nil {
		return nil, errors.New("kerberos client not configured")
	}
	if spn == "" {
		return nil, errors.New("no service principal for endpoint")
	}
	ticket, key, err := client.GetServiceTicket(spn)
	if err != nil {
		return nil, fmt.Errorf("service ticket for %s: %w", spn, err)
	}
	return &gssapiContext{client: client, spn: spn, ticket: ticket, sessionKey: key}, nil
}

// initialToken builds the AP-REQ token that opens the GSSAPI exchange.
func (g *gssapiContext) initialToken() ([]byte, error) {
	token, err := spnego.NewKRB5TokenAPREQ(
		g.client,
		g.ticket,
		g.sessionKey,
		[]int{gssapi.ContextFlagInteg, gssapi.ContextFlagMutual},
		[]int{},
	)
	if err != nil {
		return nil, err
	}
	return token.Marshal()
}

// respond answers a server challenge. The final challenge is a wrap token
// carrying the negotiated QOP; it is verified against the session key and
// echoed back signed by the initiator.
func (g *gssapiContext) respond(challenge []byte) ([]byte, error) {
	if len(challenge) == 0 {
		return nil, nil
	}

	var wrapped gssapi.WrapToken
	if err := wrapped.Unmarshal(challenge, true); err != nil {
		return nil, err
	}
	if _, err := wrapped.Verify(g.sessionKey, keyusage.GSSAPI_ACCEPTOR_SEAL); err != nil {
		return nil, fmt.Errorf("verify challenge from %s: %w", g.spn, err)
	}

	reply := gssapi.WrapToken{
		Flags:     0,
		EC:        wrapped.EC,
		RRC:       0,
		SndSeqNum: wrapped.SndSeqNum,
		Payload:   wrapped.Payload,
	}
	if err := reply.SetCheckSum(g.sessionKey, keyusage.GSSAPI_INITIATOR_SEAL); err != nil {
		return nil, err
	}
	return reply.Marshal()
}
