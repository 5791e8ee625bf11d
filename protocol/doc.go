// Package protocol implements the client side of the Redis serialization
// protocol (RESP2): encoding requests, framing replies read off a stream and
// decoding them.
//
// === Requests
//
// Every request is a multibulk of bulk strings, command name first.
//
//   ```
//     *2\r\n
//     $3\r\n
//     GET\r\n
//     $3\r\n
//     foo\r\n
//   ```
//
// === Replies
//
// - `+<text>\r\n`          status
// - `-<text>\r\n`          error, surfaced as a *ServerError
// - `:<int>\r\n`           integer
// - `$<len>\r\n<bytes>\r\n` bulk, `$-1\r\n` is the nil bulk
// - `*<count>\r\n<replies>` multibulk, `*-1\r\n` is the nil multibulk
//
// Bulk payloads are binary, they may contain CR and LF and are never scanned
// for a terminator. Nil values are distinct from empty ones.
//
// === Framing
//
// A stream hands out replies in chunks of any size. FrameReader buffers
// chunks until FrameLength reports a whole reply, which Decode then turns
// into a Reply.
package protocol
