package ens

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/text/unicode/norm"
)

// Normalize lower-cases name and puts it in NFC form so that visually equal
// labels map to the same node.
func Normalize(name string) string {
	return norm.NFC.String(strings.ToLower(strings.TrimSpace(name)))
}

// IsSingleLabel reports whether label names exactly one level below its
// parent, i.e. it holds no dots once normalized.
func IsSingleLabel(label string) bool {
	return !strings.Contains(Normalize(label), ".")
}

// LabelHash is the keccak256 of a single normalized label.
func LabelHash(label string) common.Hash {
	return crypto.Keccak256Hash([]byte(Normalize(label)))
}

// Namehash computes the EIP-137 node of a dotted name. The empty name is the
// zero node.
func Namehash(name string) common.Hash {
	node := common.Hash{}
	name = Normalize(name)
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		node = Subnode(node, crypto.Keccak256Hash([]byte(labels[i])))
	}
	return node
}

// Subnode returns the node of label under parent.
func Subnode(parent, label common.Hash) common.Hash {
	return crypto.Keccak256Hash(parent.Bytes(), label.Bytes())
}

// ReverseNode is the node holding the primary name of addr.
func ReverseNode(addr common.Address) common.Hash {
	return Namehash(strings.ToLower(addr.Hex()[2:]) + ".addr.reverse")
}
