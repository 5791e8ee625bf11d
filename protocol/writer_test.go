package protocol_test

import (
	"bytes"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/resplite/protocol"
)

var _ = Describe("Writer", func() {
	Describe("AppendReply", func() {
		It("encodes every reply kind", func() {
			for expected, reply := range map[string]protocol.Reply{
				"+OK\r\n":         protocol.Status("OK"),
				":-12\r\n":        protocol.Integer(-12),
				"$3\r\nfoo\r\n":   protocol.BulkString("foo"),
				"$0\r\n\r\n":      protocol.Bulk(nil),
				"$-1\r\n":         protocol.NilBulk(),
				"*0\r\n":          protocol.MultiBulk(),
				"*-1\r\n":         protocol.NilMultiBulk(),
				"*2\r\n:1\r\n*1\r\n$-1\r\n": protocol.MultiBulk(
					protocol.Integer(1),
					protocol.MultiBulk(protocol.NilBulk()),
				),
			} {
				Expect(string(protocol.AppendReply(nil, reply))).To(Equal(expected))
			}
		})

		It("appends to the given buffer", func() {
			b := protocol.AppendReply([]byte("prefix"), protocol.Integer(1))
			Expect(string(b)).To(Equal("prefix:1\r\n"))
		})

		It("decodes back to the same reply", func() {
			reply := protocol.MultiBulk(
				protocol.Status("s"),
				protocol.Integer(9),
				protocol.Bulk([]byte("with\r\ncrlf")),
				protocol.NilBulk(),
				protocol.MultiBulk(protocol.NilMultiBulk(), protocol.MultiBulk()),
			)

			decoded, err := protocol.DecodeReply(protocol.AppendReply(nil, reply))
			Expect(err).To(Succeed())
			Expect(decoded).To(Equal(reply))
		})

		It("panics on the zero Reply", func() {
			Expect(func() { protocol.AppendReply(nil, protocol.Reply{}) }).To(Panic())
		})
	})

	Describe("WriteOk", func() {
		It("writes an OK status", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteOk(w)).To(Succeed())
			Expect(w.String()).To(Equal("+OK\r\n"))
		})
	})

	Describe("WriteReply", func() {
		It("writes the encoded reply", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteReply(w, protocol.BulkString("resp"))).To(Succeed())
			Expect(w.String()).To(Equal("$4\r\nresp\r\n"))
		})
	})

	Describe("WriteError", func() {
		It("writes an error reply", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteError(w, "ERR errMessage")).To(Succeed())
			Expect(w.String()).To(Equal("-ERR errMessage\r\n"))
		})

		It("replaces line breaks in the message", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteError(w, "ERR two\r\nlines")).To(Succeed())
			Expect(w.String()).To(Equal("-ERR two  lines\r\n"))
		})
	})
})
