// Package meta encodes requests and decodes responses of the memcached meta
// protocol (memcached 1.6+).
//
// Responses are decoded from a LineReader, implemented by *linebuf.Reader:
// response lines are parsed in place in the reader buffer and released
// right away, only the data a Response keeps is copied.
//
//	r := linebuf.NewReader(conn, 4096)
//
//	req := meta.NewRequest(meta.CmdGet, "mykey", nil).AddReturnValue().AddReturnCAS()
//	if err := meta.WriteRequest(r.Source(), req); err != nil {
//	    return err
//	}
//
//	resp, err := meta.ReadResponse(r)
//	if err != nil {
//	    if meta.ShouldCloseConnection(err) {
//	        conn.Close()
//	    }
//	    return err
//	}
//
// # Pipelining
//
// Quiet requests (FlagQuiet) only answer on failure or hit; a trailing mn
// marks the end of the batch:
//
//	meta.WriteRequests(conn,
//	    meta.NewRequest(meta.CmdGet, "k1", nil).AddReturnValue().AddReturnKey().AddQuiet(),
//	    meta.NewRequest(meta.CmdGet, "k2", nil).AddReturnValue().AddReturnKey().AddQuiet(),
//	    meta.NewRequest(meta.CmdNoOp, "", nil),
//	)
//	resps, err := meta.ReadResponses(r) // hits only, MN excluded
//
// # Errors
//
// ERROR, CLIENT_ERROR and SERVER_ERROR lines are protocol-level failures and
// come back in Response.Error. Go errors are I/O or decoding failures.
// ShouldCloseConnection tells which of them leave the connection usable.
package meta
