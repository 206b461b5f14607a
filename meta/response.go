package meta

import "strings"

// Response is a decoded meta protocol response.
type Response struct {
	// Status is the response code: HD, VA, EN, NF, NS, EX, MN or ME.
	// Empty when Error is set.
	Status StatusType

	// Data is the value of a VA response, or the key=value pairs of an ME
	// response (see ParseDebugParams).
	Data []byte

	// Flags holds the returned flags in wire order.
	Flags Flags

	// Error is set for ERROR, CLIENT_ERROR and SERVER_ERROR lines.
	Error error
}

// IsSuccess reports a HD, VA, MN or ME status.
func (r *Response) IsSuccess() bool {
	switch r.Status {
	case StatusHD, StatusVA, StatusMN, StatusME:
		return true
	default:
		return false
	}
}

// IsMiss reports an EN or NF status.
func (r *Response) IsMiss() bool {
	return r.Status == StatusEN || r.Status == StatusNF
}

// IsNotStored reports an NS status, e.g. an add on an existing key.
func (r *Response) IsNotStored() bool {
	return r.Status == StatusNS
}

// IsCASMismatch reports an EX status.
func (r *Response) IsCASMismatch() bool {
	return r.Status == StatusEX
}

func (r *Response) HasValue() bool {
	return r.Status == StatusVA && r.Data != nil
}

func (r *Response) HasError() bool {
	return r.Error != nil
}

func (r *Response) HasFlag(flagType FlagType) bool {
	return r.Flags.Has(flagType)
}

// GetFlagToken returns the token of the first flag of the given type.
func (r *Response) GetFlagToken(flagType FlagType) (token []byte, ok bool) {
	return r.Flags.Get(flagType)
}

// HasWinFlag reports the W flag: this client should recache the item.
func (r *Response) HasWinFlag() bool {
	return r.HasFlag(FlagWin)
}

// HasStaleFlag reports the X flag: the item is stale.
func (r *Response) HasStaleFlag() bool {
	return r.HasFlag(FlagStale)
}

// HasAlreadyWonFlag reports the Z flag: another client is recaching.
func (r *Response) HasAlreadyWonFlag() bool {
	return r.HasFlag(FlagAlreadyWon)
}

// ParseDebugParams splits the Data of an ME response into a map.
// Tokens without '=' are skipped.
func ParseDebugParams(data []byte) map[string]string {
	params := make(map[string]string)

	for _, part := range strings.Fields(string(data)) {
		if key, value, found := strings.Cut(part, "="); found {
			params[key] = value
		}
	}

	return params
}
