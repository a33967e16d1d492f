package transport

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// outboundEchohash computes H(encoded || receiver) for a message we are
// sending, the fingerprint outbound dedup and ack-matching rely on.
func outboundEchohash(encoded []byte, receiver common.Address) common.Hash {
	return echohash(encoded, receiver.Bytes())
}

// inboundEchohash computes H(encoded || ourAddress) for a message we
// received, the key the inbound ack cache is looked up by.
func inboundEchohash(encoded []byte, ourAddress common.Address) common.Hash {
	return echohash(encoded, ourAddress.Bytes())
}

func echohash(encoded, addr []byte) common.Hash {
	buf := make([]byte, 0, len(encoded)+len(addr))
	buf = append(buf, encoded...)
	buf = append(buf, addr...)
	return crypto.Keccak256Hash(buf)
}
