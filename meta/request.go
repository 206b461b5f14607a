package meta

import (
	"strconv"
	"time"
)

// Request is a meta protocol request.
type Request struct {
	// Command is the command code: mg, ms, md, ma, me or mn.
	Command CmdType

	// Key is the item key. Empty for mn.
	Key string

	// Data is the value for ms. The size token is len(Data).
	Data []byte

	// Flags holds the serialized flags, with their leading spaces.
	Flags Flags
}

// NewRequest creates a request without flags. Flags are added with the Add*
// methods, which can be chained:
//
//	req := meta.NewRequest(meta.CmdGet, "mykey", nil).AddReturnValue().AddReturnCAS()
func NewRequest(cmd CmdType, key string, data []byte) *Request {
	return &Request{
		Command: cmd,
		Key:     key,
		Data:    data,
	}
}

// HasFlag reports whether the request carries a flag of the given type.
func (r *Request) HasFlag(flagType FlagType) bool {
	return r.Flags.Has(flagType)
}

// GetFlagToken returns the token of the first flag of the given type.
func (r *Request) GetFlagToken(flagType FlagType) (token []byte, ok bool) {
	return r.Flags.Get(flagType)
}

func (r *Request) AddOpaque(token string) *Request {
	r.Flags.AddTokenString(FlagOpaque, token)
	return r
}
func (r *Request) AddQuiet() *Request     { r.Flags.Add(FlagQuiet); return r }
func (r *Request) AddBase64Key() *Request { r.Flags.Add(FlagBase64Key); return r }
func (r *Request) AddReturnKey() *Request { r.Flags.Add(FlagReturnKey); return r }

func (r *Request) AddReturnValue() *Request       { r.Flags.Add(FlagReturnValue); return r }
func (r *Request) AddReturnCAS() *Request         { r.Flags.Add(FlagReturnCAS); return r }
func (r *Request) AddReturnTTL() *Request         { r.Flags.Add(FlagReturnTTL); return r }
func (r *Request) AddReturnClientFlags() *Request { r.Flags.Add(FlagReturnClientFlags); return r }
func (r *Request) AddReturnSize() *Request        { r.Flags.Add(FlagReturnSize); return r }
func (r *Request) AddReturnHit() *Request         { r.Flags.Add(FlagReturnHit); return r }
func (r *Request) AddReturnLastAccess() *Request  { r.Flags.Add(FlagReturnLastAccess); return r }

func (r *Request) AddTTL(d time.Duration) *Request {
	r.Flags.AddDurationSeconds(FlagTTL, d)
	return r
}
func (r *Request) AddCAS(value uint64) *Request         { r.Flags.AddUint64(FlagCAS, value); return r }
func (r *Request) AddExplicitCAS(value uint64) *Request { r.Flags.AddUint64(FlagExplicitCAS, value); return r }
func (r *Request) AddClientFlags(flags uint32) *Request {
	r.Flags.AddUint64(FlagClientFlags, uint64(flags))
	return r
}

func (r *Request) AddNoLRUBump() *Request { r.Flags.Add(FlagNoLRUBump); return r }
func (r *Request) AddRecache(d time.Duration) *Request {
	r.Flags.AddDurationSeconds(FlagRecache, d)
	return r
}
func (r *Request) AddVivify(d time.Duration) *Request {
	r.Flags.AddDurationSeconds(FlagVivify, d)
	return r
}

func (r *Request) AddMode(mode string) *Request { r.Flags.AddTokenString(FlagMode, mode); return r }
func (r *Request) AddInvalidate() *Request      { r.Flags.Add(FlagInvalidate); return r }

func (r *Request) AddDelta(amount uint64) *Request       { r.Flags.AddUint64(FlagDelta, amount); return r }
func (r *Request) AddInitialValue(value uint64) *Request { r.Flags.AddUint64(FlagInitialValue, value); return r }

func (r *Request) AddRemoveValue() *Request { r.Flags.Add(FlagRemoveValue); return r }

// Flags is the wire form of a flag list: each flag is a space, the flag
// character and an optional token, e.g. " v c T60 Oabc".
//
// The zero value is an empty list.
type Flags []byte

func (f Flags) IsEmpty() bool {
	return len(f) == 0
}

func (f *Flags) Reset() {
	*f = (*f)[:0]
}

// Clone returns a copy that does not share memory with f.
func (f Flags) Clone() Flags {
	if f == nil {
		return nil
	}
	return append(Flags(nil), f...)
}

func (f *Flags) Add(flagType FlagType) {
	*f = append(*f, ' ', byte(flagType))
}

func (f *Flags) AddTokenString(flagType FlagType, token string) {
	*f = append(*f, ' ', byte(flagType))
	*f = append(*f, token...)
}

func (f *Flags) AddTokenBytes(flagType FlagType, token []byte) {
	*f = append(*f, ' ', byte(flagType))
	*f = append(*f, token...)
}

func (f *Flags) AddInt64(flagType FlagType, value int64) {
	*f = append(*f, ' ', byte(flagType))
	*f = strconv.AppendInt(*f, value, 10)
}

func (f *Flags) AddUint64(flagType FlagType, value uint64) {
	*f = append(*f, ' ', byte(flagType))
	*f = strconv.AppendUint(*f, value, 10)
}

// AddDurationSeconds adds d truncated to whole seconds. A positive d under
// one second becomes 1: a 0 TTL means no expiration.
func (f *Flags) AddDurationSeconds(flagType FlagType, d time.Duration) {
	seconds := int64(d / time.Second)
	if seconds == 0 && d > 0 {
		seconds = 1
	}
	f.AddInt64(flagType, seconds)
}

func (f Flags) Has(flagType FlagType) bool {
	_, ok := f.Get(flagType)
	return ok
}

// Get returns the token of the first flag of the given type.
// token is nil when the flag is present without a token.
func (f Flags) Get(flagType FlagType) (token []byte, ok bool) {
	i := 0
	for i < len(f) {
		for i < len(f) && f[i] == ' ' {
			i++
		}
		if i >= len(f) {
			break
		}

		t := FlagType(f[i])
		i++

		start := i
		for i < len(f) && f[i] != ' ' {
			i++
		}

		if t == flagType {
			if start == i {
				return nil, true
			}
			return f[start:i], true
		}
	}
	return nil, false
}
