package protocol_test

import (
	"strings"

	"github.com/mediocregopher/mediocre-go-lib/mrand"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/resplite/protocol"
)

type stringer struct{}

func (stringer) String() string { return "from-stringer" }

var _ = Describe("Encoding", func() {
	Describe("EncodeCommand()", func() {
		It("encodes a command as a multibulk of bulk strings", func() {
			Expect(string(protocol.EncodeCommand("GET", "*"))).
				To(Equal("*2\r\n$3\r\nGET\r\n$1\r\n*\r\n"))
		})

		It("encodes a command without arguments", func() {
			Expect(string(protocol.EncodeCommand("PING"))).
				To(Equal("*1\r\n$4\r\nPING\r\n"))
		})

		It("splits the command line on whitespace", func() {
			Expect(string(protocol.EncodeCommand("SET  key\tvalue"))).
				To(Equal("*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n"))
		})

		It("splits arguments that contain whitespace", func() {
			Expect(string(protocol.EncodeCommand("SET", "key", "two words"))).
				To(Equal("*4\r\n$3\r\nSET\r\n$3\r\nkey\r\n$3\r\ntwo\r\n$5\r\nwords\r\n"))
		})

		It("uses byte lengths", func() {
			Expect(string(protocol.EncodeCommand("ECHO", "héllo"))).
				To(Equal("*2\r\n$4\r\nECHO\r\n$6\r\nhéllo\r\n"))
		})

		It("renders non string arguments as text", func() {
			Expect(string(protocol.EncodeCommand("X", 12, int64(-3), uint8(7), 1.5, true, []byte("b"), stringer{}))).
				To(Equal("*8\r\n$1\r\nX\r\n$2\r\n12\r\n$2\r\n-3\r\n$1\r\n7\r\n$3\r\n1.5\r\n$1\r\n1\r\n$1\r\nb\r\n$13\r\nfrom-stringer\r\n"))
		})

		It("panics on an empty command", func() {
			Expect(func() { protocol.EncodeCommand("") }).To(Panic())
			Expect(func() { protocol.EncodeCommand(" \t ") }).To(Panic())
		})
	})

	Describe("EncodeArgs()", func() {
		It("does not split arguments", func() {
			Expect(string(protocol.EncodeArgs([]byte("SET"), []byte("k"), []byte("two words")))).
				To(Equal("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$9\r\ntwo words\r\n"))
		})

		It("sends binary and empty arguments as is", func() {
			Expect(string(protocol.EncodeArgs([]byte("SET"), []byte{}, []byte("\r\n\x00")))).
				To(Equal("*3\r\n$3\r\nSET\r\n$0\r\n\r\n$3\r\n\r\n\x00\r\n"))
		})

		It("panics without arguments", func() {
			Expect(func() { protocol.EncodeArgs() }).To(Panic())
		})
	})

	Describe("round trips", func() {
		It("decodes an encoded request back into its tokens", func() {
			for i := 0; i < 50; i++ {
				tokens := make([]string, 1+mrand.Intn(8))
				for j := range tokens {
					tokens[j] = mrand.Hex(1 + mrand.Intn(32))
				}

				args := make([]interface{}, 0, len(tokens)-1)
				for _, t := range tokens[1:] {
					args = append(args, t)
				}

				encoded := protocol.EncodeCommand(tokens[0], args...)

				reply, n, err := protocol.Decode(encoded, 0)
				Expect(err).To(Succeed())
				Expect(n).To(Equal(len(encoded)))

				elems, err := reply.Elems()
				Expect(err).To(Succeed())
				Expect(elems).To(HaveLen(len(tokens)))
				for j, elem := range elems {
					Expect(elem.Str()).To(Equal(tokens[j]))
				}
			}
		})

		It("reproduces echoed status and bulk replies", func() {
			for i := 0; i < 50; i++ {
				token := mrand.Hex(1 + mrand.Intn(64))

				for _, echo := range []protocol.Reply{
					protocol.Status(token),
					protocol.BulkString(token),
				} {
					wire := protocol.AppendReply(nil, echo)
					reply, n, err := protocol.Decode(wire, 0)
					Expect(err).To(Succeed())
					Expect(n).To(Equal(len(wire)))
					Expect(reply.Str()).To(Equal(token))
				}
			}
		})

		It("tokenizes the same way it encodes", func() {
			tokens := protocol.Tokenize("  MSET a 1", "b", 2)
			words := make([]string, len(tokens))
			for i, t := range tokens {
				words[i] = string(t)
			}
			Expect(strings.Join(words, ",")).To(Equal("MSET,a,1,b,2"))
		})
	})
})
