package hostdispatch

import (
	"bytes"
	"encoding/gob"

	"github.com/go-errors/errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptobyte3/raiden/capability"
	"github.com/cryptobyte3/raiden/transfer"
)

// The wire encoding of individual message bodies is an external concern:
// signing and the message-body codec live outside this module. What follows
// is boundary glue, used to carry emitted events out through a
// transport.Transport and to stand in, for tests and local simulation, for
// the signed-message parser a real deployment would supply in front of
// Decode.
func init() {
	gob.Register(&transfer.InitMediator{})
	gob.Register(&transfer.Block{})
	gob.Register(&transfer.ReceiveTransferRefund{})
	gob.Register(&transfer.ReceiveSecretReveal{})
	gob.Register(&transfer.ContractReceiveSecretReveal{})
	gob.Register(&transfer.ReceiveUnlock{})
	gob.Register(&transfer.ReceiveLockExpired{})

	gob.Register(&transfer.SendMediatedTransfer{})
	gob.Register(&transfer.SendRefundTransfer{})
	gob.Register(&transfer.SendRevealSecret{})
	gob.Register(&transfer.SendUnlock{})
	gob.Register(&transfer.SendProcessed{})
}

// wireEvent is the outbound envelope: it wraps one emitted transfer.Event so
// it can be handed to transport.Transport.SendAsync as a
// capability.ApplicationMessage.
type wireEvent struct {
	sender common.Address
	token  common.Address
	event  transfer.Event
}

func (w *wireEvent) Sender() common.Address { return w.sender }
func (w *wireEvent) Token() common.Address  { return w.token }

func (w *wireEvent) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&w.event); err != nil {
		return nil, errors.Errorf("hostdispatch: encode event: %v", err)
	}
	return buf.Bytes(), nil
}

// inboundFrame is the addressed state change a signed-message parser would
// deliver in production. EncodeStateChange below builds one directly,
// standing in for that parser in tests.
type inboundFrame struct {
	Sender common.Address
	Token  common.Address
	Change transfer.StateChange
}

// EncodeStateChange builds the bytes Decode turns back into change,
// addressed as if sender had sent it over token's queue.
func EncodeStateChange(sender, token common.Address, change transfer.StateChange) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(inboundFrame{Sender: sender, Token: token, Change: change}); err != nil {
		return nil, errors.Errorf("hostdispatch: encode state change: %v", err)
	}
	return buf.Bytes(), nil
}

// inboundEnvelope adapts a decoded inboundFrame to capability.ApplicationMessage.
type inboundEnvelope struct {
	frame inboundFrame
}

func (e *inboundEnvelope) Sender() common.Address { return e.frame.Sender }
func (e *inboundEnvelope) Token() common.Address  { return e.frame.Token }

func (e *inboundEnvelope) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e.frame); err != nil {
		return nil, errors.Errorf("hostdispatch: re-encode state change: %v", err)
	}
	return buf.Bytes(), nil
}

// Decode is the transport.Decoder hostdispatch.New wires into its
// transport.Transport.
func Decode(payload []byte) (capability.ApplicationMessage, error) {
	var frame inboundFrame
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&frame); err != nil {
		return nil, errors.Errorf("hostdispatch: decode state change: %v", err)
	}
	return &inboundEnvelope{frame: frame}, nil
}
