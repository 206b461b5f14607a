package meta

// CmdType is a meta protocol command code.
type CmdType string

// FlagType is a single-character flag identifier.
type FlagType byte

// StatusType is a 2-character response status code.
type StatusType string

// Protocol delimiters
const (
	// CRLF terminates every request and response line, and every data block.
	CRLF = "\r\n"

	// Space separates tokens on a line.
	Space = " "
)

// Commands
const (
	// CmdGet retrieves an item: mg <key> <flags>*\r\n
	// Responds VA <size> <flags>* with a data block when FlagReturnValue is
	// set, HD otherwise, EN on miss.
	CmdGet CmdType = "mg"

	// CmdSet stores an item: ms <key> <size> <flags>*\r\n<data>\r\n
	// Responds HD, NS (not stored), EX (CAS mismatch) or NF.
	CmdSet CmdType = "ms"

	// CmdDelete removes or invalidates an item: md <key> <flags>*\r\n
	// Responds HD, NF or EX.
	CmdDelete CmdType = "md"

	// CmdArithmetic increments or decrements a numeric value: ma <key> <flags>*\r\n
	// Responds HD, VA with the new value when FlagReturnValue is set, NF, NS or EX.
	CmdArithmetic CmdType = "ma"

	// CmdDebug returns human-readable item metadata: me <key>\r\n
	// Responds ME <key> <k>=<v>* or EN.
	CmdDebug CmdType = "me"

	// CmdNoOp does nothing and responds MN. It marks the end of a pipeline
	// of quiet requests.
	CmdNoOp CmdType = "mn"

	// CmdStats is the text protocol stats command. Responds with STAT lines
	// terminated by END.
	CmdStats CmdType = "stats"
)

// Response statuses
const (
	StatusHD StatusType = "HD" // Success, no value
	StatusVA StatusType = "VA" // Value follows
	StatusEN StatusType = "EN" // Miss
	StatusNF StatusType = "NF" // Not found
	StatusNS StatusType = "NS" // Not stored
	StatusEX StatusType = "EX" // CAS mismatch
	StatusMN StatusType = "MN" // No-op marker
	StatusME StatusType = "ME" // Debug response
)

// Error lines sent instead of a status
const (
	ErrorGeneric      = "ERROR"
	ErrorClientPrefix = "CLIENT_ERROR"
	ErrorServerPrefix = "SERVER_ERROR"
)

// Stats response markers
const (
	StatPrefix = "STAT"
	EndMarker  = "END"
)

// Flags accepted by all commands
const (
	FlagBase64Key FlagType = 'b'
	FlagReturnKey FlagType = 'k'
	FlagOpaque    FlagType = 'O'
	FlagQuiet     FlagType = 'q'
)

// Metadata retrieval flags (mg, ma)
const (
	FlagReturnCAS         FlagType = 'c'
	FlagReturnClientFlags FlagType = 'f'
	FlagReturnSize        FlagType = 's'
	FlagReturnTTL         FlagType = 't'
	FlagReturnValue       FlagType = 'v'
	FlagReturnHit         FlagType = 'h'
	FlagReturnLastAccess  FlagType = 'l'
)

// Modification flags
const (
	FlagCAS         FlagType = 'C'
	FlagExplicitCAS FlagType = 'E'
	FlagTTL         FlagType = 'T'
	FlagClientFlags FlagType = 'F'
)

// Get flags
const (
	FlagNoLRUBump FlagType = 'u'
	FlagRecache   FlagType = 'R'
	FlagVivify    FlagType = 'N'
)

// Set flags
const (
	FlagMode       FlagType = 'M'
	FlagInvalidate FlagType = 'I'
)

// Set modes, token of FlagMode
const (
	ModeSet     = "S"
	ModeAdd     = "E"
	ModeReplace = "R"
	ModeAppend  = "A"
	ModePrepend = "P"
)

// Arithmetic flags
const (
	FlagDelta        FlagType = 'D'
	FlagInitialValue FlagType = 'J'
)

// Arithmetic modes, token of FlagMode
const (
	ModeIncrement = "I"
	ModeDecrement = "D"
)

// Delete flags
const (
	FlagRemoveValue FlagType = 'x'
)

// Flags only found in responses
const (
	FlagWin        FlagType = 'W' // The client won the right to recache
	FlagStale      FlagType = 'X' // The item is stale
	FlagAlreadyWon FlagType = 'Z' // Another client already won
)

// Limits
const (
	MinKeyLength    = 1
	MaxKeyLength    = 250
	MaxOpaqueLength = 32

	// MaxValueSize is the largest value size accepted in a VA response.
	MaxValueSize = 1024 * 1024
)
