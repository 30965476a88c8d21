package storage

// Key schema for the Pebble wallet:
//
//	id:<label> → wallet.Identity (JSON)
const prefixIdentity = "id:"

// identityKey returns the key for an identity
// Format: "id:{label}"
func identityKey(label string) []byte {
	return []byte(prefixIdentity + label)
}

func labelFromKey(key []byte) string {
	return string(key[len(prefixIdentity):])
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
