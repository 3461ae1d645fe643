package libmemc

// Protocol selects the wire protocol a Client speaks to every server.
type Protocol uint8

const (
	// TextProtocol is the ASCII line protocol.
	TextProtocol Protocol = iota
	// BinaryProtocol is the framed protocol with fixed 24-byte headers.
	BinaryProtocol
)

func (p Protocol) String() string {
	switch p {
	case TextProtocol:
		return "text"
	case BinaryProtocol:
		return "binary"
	}
	return "unknown"
}

// StoreCommand names one of the storage verbs. The set is closed: Store
// rejects any other value instead of guessing at semantics.
type StoreCommand uint8

const (
	// Add stores only if the key does not exist yet.
	Add StoreCommand = iota
	// Set stores unconditionally.
	Set
	// Replace stores only if the key already exists.
	Replace
)

func (c StoreCommand) valid() bool { return c <= Replace }

func (c StoreCommand) String() string {
	switch c {
	case Add:
		return "add"
	case Set:
		return "set"
	case Replace:
		return "replace"
	}
	return "unknown"
}

// Item is the unit of storage exchanged with the cache. The caller owns
// it; fetches mutate it in place.
type Item struct {
	// Key addresses the item and is used verbatim, byte for byte. The
	// textual protocol additionally requires it to be free of spaces and
	// control characters; the client does not police this.
	Key []byte

	// Data holds the payload. len(Data) is the number of valid bytes.
	// Get reuses the backing array when its capacity suffices and
	// allocates a larger one otherwise, so with stable value sizes a
	// fetch loop settles into zero allocations.
	Data []byte

	// Flags travels with the item and comes back on fetch. The client
	// never interprets it.
	Flags uint32

	// Expiration is in seconds, with the server's usual convention for
	// small versus absolute values. Zero means the item never expires.
	Expiration uint32

	// CAS carries the server's version token for the value, refreshed by
	// binary fetches. The textual commands spoken here do not carry it.
	CAS uint64
}
