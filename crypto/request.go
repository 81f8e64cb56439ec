package crypto

import (
	"encoding/hex"
	"strconv"
	"strings"
)

const requestDomain = "gmboard-rpc-v1"

// RequestDigest is the keccak256 digest an RPC caller signs to prove control
// of a wallet. Fields are method specific and order sensitive.
func RequestDigest(method string, timestamp int64, fields ...string) []byte {
	parts := make([][]byte, 0, len(fields)*2+4)
	parts = append(parts,
		[]byte(requestDomain), []byte{0},
		[]byte(method), []byte{0},
		[]byte(strconv.FormatInt(timestamp, 10)),
	)
	for _, field := range fields {
		parts = append(parts, []byte{0}, []byte(field))
	}
	return Keccak256(parts...)
}

// WalletField renders wallet as lowercase 0x hex for use in RequestDigest.
func WalletField(wallet [20]byte) string {
	return "0x" + strings.ToLower(hex.EncodeToString(wallet[:]))
}
