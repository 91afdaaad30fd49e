package fin

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Storage layout. Every pool-scoped key embeds the same binary pool key so
// that lexicographic iteration over a side visits pools in rate order:
//
//	c                          venue config
//	p/<pool key>               book presence marker (value is empty)
//	b/<pool key>               fill engine state
//	s/<pool key><epoch BE64>   closed-epoch sum snapshot
//	o/<owner>\x00<pool key>    order record
//
// pool key = side byte, price type byte, price bytes. Fixed prices encode
// as the value scaled by 10^18 in 16 big-endian bytes; oracle premiums as
// the premium biased by 0x8000 in 2 big-endian bytes. Both encodings sort
// ascending by rate.
var (
	keyConfig      = []byte("c")
	prefixPresence = []byte("p/")
	prefixPool     = []byte("b/")
	prefixSnapshot = []byte("s/")
	prefixOrder    = []byte("o/")
)

var fixedScale = decimal.New(1, 18)

const (
	fixedKeyLen  = 2 + 16
	oracleKeyLen = 2 + 2
)

func poolKey(side Side, price Price) []byte {
	out := []byte{byte(side), byte(price.Type)}
	switch price.Type {
	case PriceFixed:
		scaled := price.Value.Mul(fixedScale).BigInt()
		if scaled.Sign() < 0 || scaled.BitLen() > 128 {
			panic(fmt.Sprintf("fixed price %s out of key range", price.Value))
		}
		buf := make([]byte, 16)
		scaled.FillBytes(buf)
		return append(out, buf...)
	case PriceOracle:
		return binary.BigEndian.AppendUint16(out, uint16(int32(price.Premium)+0x8000))
	}
	panic(fmt.Sprintf("unknown price type %d", price.Type))
}

func parsePoolKey(key []byte) (Side, Price, error) {
	if len(key) < 2 {
		return 0, Price{}, fmt.Errorf("pool key too short: %x", key)
	}
	side := Side(key[0])
	if side != SideBase && side != SideQuote {
		return 0, Price{}, fmt.Errorf("invalid side byte %d", key[0])
	}
	switch PriceType(key[1]) {
	case PriceFixed:
		if len(key) != fixedKeyLen {
			return 0, Price{}, fmt.Errorf("fixed pool key has %d bytes", len(key))
		}
		scaled := new(big.Int).SetBytes(key[2:])
		return side, FixedPrice(decimal.NewFromBigInt(scaled, -18)), nil
	case PriceOracle:
		if len(key) != oracleKeyLen {
			return 0, Price{}, fmt.Errorf("oracle pool key has %d bytes", len(key))
		}
		biased := binary.BigEndian.Uint16(key[2:])
		return side, OraclePrice(int16(int32(biased) - 0x8000)), nil
	}
	return 0, Price{}, fmt.Errorf("invalid price type byte %d", key[1])
}

func presenceKey(side Side, price Price) []byte {
	return append(append([]byte{}, prefixPresence...), poolKey(side, price)...)
}

// presencePrefix bounds one side and price type of the book, e.g. all
// fixed-price base pools.
func presencePrefix(side Side, ptype PriceType) []byte {
	return append(append([]byte{}, prefixPresence...), byte(side), byte(ptype))
}

func poolStateKey(side Side, price Price) []byte {
	return append(append([]byte{}, prefixPool...), poolKey(side, price)...)
}

func snapshotKey(side Side, price Price, epoch uint64) []byte {
	key := append(append([]byte{}, prefixSnapshot...), poolKey(side, price)...)
	return binary.BigEndian.AppendUint64(key, epoch)
}

func orderKey(owner string, side Side, price Price) []byte {
	key := append(append([]byte{}, prefixOrder...), owner...)
	key = append(key, 0)
	return append(key, poolKey(side, price)...)
}

func orderPrefix(owner string) []byte {
	key := append(append([]byte{}, prefixOrder...), owner...)
	return append(key, 0)
}

func parseOrderKey(key []byte) (owner string, side Side, price Price, err error) {
	if !bytes.HasPrefix(key, prefixOrder) {
		return "", 0, Price{}, fmt.Errorf("not an order key: %x", key)
	}
	rest := key[len(prefixOrder):]
	sep := bytes.IndexByte(rest, 0)
	if sep < 0 {
		return "", 0, Price{}, fmt.Errorf("malformed order key: %x", key)
	}
	owner = string(rest[:sep])
	side, price, err = parsePoolKey(rest[sep+1:])
	return owner, side, price, err
}
