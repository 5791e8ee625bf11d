package protocol_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing/iotest"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/resplite/protocol"
)

// chunkReader hands out its data in chunks of a fixed size.
type chunkReader struct {
	data []byte
	size int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}

	n := c.size
	if n > len(p) {
		n = len(p)
	}
	if n > len(c.data) {
		n = len(c.data)
	}

	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

// stallReader returns 0, nil forever.
type stallReader struct{}

func (stallReader) Read(p []byte) (int, error) {
	return 0, nil
}

var _ = Describe("FrameLength()", func() {
	It("measures complete values", func() {
		for _, input := range []string{
			"+OK\r\n",
			"-ERR no\r\n",
			":42\r\n",
			"$-1\r\n",
			"$0\r\n\r\n",
			"$5\r\nhello\r\n",
			"*-1\r\n",
			"*0\r\n",
			"*2\r\n*1\r\n$-1\r\n:1\r\n",
		} {
			Expect(protocol.FrameLength([]byte(input))).To(Equal(len(input)), input)
		}
	})

	It("only measures the first value", func() {
		Expect(protocol.FrameLength([]byte("+OK\r\n:1\r\n"))).To(Equal(5))
	})

	It("spans a whole multibulk even when it holds an error", func() {
		input := "*3\r\n:1\r\n-ERR inner\r\n$3\r\nfoo\r\n"
		Expect(protocol.FrameLength([]byte(input))).To(Equal(len(input)))
	})

	It("returns ErrIncomplete for every proper prefix", func() {
		input := "*3\r\n$6\r\nhel\rlo\r\n*1\r\n:-7\r\n+done\r\n"
		for i := 0; i < len(input); i++ {
			_, err := protocol.FrameLength([]byte(input[:i]))
			Expect(err).To(MatchError(protocol.ErrIncomplete), input[:i])
		}
	})

	It("returns protocol errors for malformed headers", func() {
		for _, input := range []string{
			"x\r\n",
			":nope\r\n",
			"$-5\r\n",
			"*abc\r\n",
			"$3\r\nabcde\r\n",
		} {
			_, err := protocol.FrameLength([]byte(input))
			Expect(errors.Is(err, protocol.ErrProtocol)).To(BeTrue(), input)
		}
	})
})

var _ = Describe("FrameReader", func() {
	reply := "*4\r\n$3\r\nGET\r\n$1\r\n*\r\n:123\r\n+A Status Message\r\n"

	It("reads a reply delivered in one chunk", func() {
		fr := protocol.NewFrameReader(strings.NewReader(reply))

		frame, err := fr.ReadFrame()
		Expect(err).To(Succeed())
		Expect(string(frame)).To(Equal(reply))
	})

	It("reads a reply delivered one byte at a time", func() {
		fr := protocol.NewFrameReader(iotest.OneByteReader(strings.NewReader(reply)))

		frame, err := fr.ReadFrame()
		Expect(err).To(Succeed())
		Expect(string(frame)).To(Equal(reply))
	})

	It("reads a reply that exactly fills the read buffer", func() {
		fr := protocol.NewFrameReader(
			&chunkReader{data: []byte(reply), size: len(reply)},
			protocol.WithReadBufferSize(len(reply)),
		)

		frame, err := fr.ReadFrame()
		Expect(err).To(Succeed())
		Expect(string(frame)).To(Equal(reply))
	})

	It("reads a reply that is a multiple of the read buffer", func() {
		payload := strings.Repeat("x", 91)
		input := "$91\r\n" + payload + "\r\n"
		Expect(len(input)).To(Equal(98))

		fr := protocol.NewFrameReader(
			&chunkReader{data: []byte(input), size: 7},
			protocol.WithReadBufferSize(7),
		)

		frame, err := fr.ReadFrame()
		Expect(err).To(Succeed())
		Expect(string(frame)).To(Equal(input))
	})

	It("keeps bytes after a frame for the next call", func() {
		fr := protocol.NewFrameReader(strings.NewReader("+OK\r\n:1\r\n$-1\r\n"))

		frame, err := fr.ReadFrame()
		Expect(err).To(Succeed())
		Expect(string(frame)).To(Equal("+OK\r\n"))
		Expect(fr.Buffered()).To(Equal(9))

		frame, err = fr.ReadFrame()
		Expect(err).To(Succeed())
		Expect(string(frame)).To(Equal(":1\r\n"))

		frame, err = fr.ReadFrame()
		Expect(err).To(Succeed())
		Expect(string(frame)).To(Equal("$-1\r\n"))
		Expect(fr.Buffered()).To(Equal(0))
	})

	It("returns data that arrives together with EOF", func() {
		fr := protocol.NewFrameReader(iotest.DataErrReader(strings.NewReader(":1\r\n")))

		frame, err := fr.ReadFrame()
		Expect(err).To(Succeed())
		Expect(string(frame)).To(Equal(":1\r\n"))
	})

	It("returns a connection error when nothing arrives", func() {
		fr := protocol.NewFrameReader(bytes.NewReader(nil))

		_, err := fr.ReadFrame()
		Expect(errors.Is(err, protocol.ErrConnection)).To(BeTrue())
		Expect(errors.Is(err, io.EOF)).To(BeTrue())
	})

	It("returns a connection error when the stream ends mid reply", func() {
		fr := protocol.NewFrameReader(strings.NewReader("*2\r\n:1\r\n"))

		_, err := fr.ReadFrame()
		Expect(errors.Is(err, protocol.ErrConnection)).To(BeTrue())
		Expect(errors.Is(err, protocol.ErrProtocol)).To(BeFalse())
	})

	It("returns a connection error for read errors", func() {
		fr := protocol.NewFrameReader(iotest.TimeoutReader(strings.NewReader("$10\r\nabc")))

		_, err := fr.ReadFrame()
		Expect(errors.Is(err, protocol.ErrConnection)).To(BeTrue())
		Expect(errors.Is(err, iotest.ErrTimeout)).To(BeTrue())
	})

	It("gives up on a reader that never makes progress", func() {
		fr := protocol.NewFrameReader(stallReader{})

		_, err := fr.ReadFrame()
		Expect(errors.Is(err, protocol.ErrConnection)).To(BeTrue())
		Expect(errors.Is(err, io.ErrNoProgress)).To(BeTrue())
	})

	It("returns a protocol error for malformed replies without waiting for more data", func() {
		fr := protocol.NewFrameReader(iotest.TimeoutReader(strings.NewReader("!bad\r\n")))

		_, err := fr.ReadFrame()
		Expect(errors.Is(err, protocol.ErrProtocol)).To(BeTrue())
	})

	Describe("WithMaxFrameSize()", func() {
		It("rejects a bulk that declares more than the limit", func() {
			fr := protocol.NewFrameReader(
				iotest.TimeoutReader(strings.NewReader("$1000\r\n")),
				protocol.WithMaxFrameSize(100),
			)

			_, err := fr.ReadFrame()
			Expect(errors.Is(err, protocol.ErrProtocol)).To(BeTrue())
		})

		It("rejects an unterminated line longer than the limit", func() {
			fr := protocol.NewFrameReader(
				strings.NewReader("+"+strings.Repeat("a", 200)),
				protocol.WithMaxFrameSize(100),
				protocol.WithReadBufferSize(64),
			)

			_, err := fr.ReadFrame()
			Expect(errors.Is(err, protocol.ErrProtocol)).To(BeTrue())
		})

		It("allows replies up to the limit", func() {
			fr := protocol.NewFrameReader(
				strings.NewReader("$3\r\nfoo\r\n"),
				protocol.WithMaxFrameSize(9),
			)

			frame, err := fr.ReadFrame()
			Expect(err).To(Succeed())
			Expect(string(frame)).To(Equal("$3\r\nfoo\r\n"))
		})
	})
})
