package protocol_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/resplite/protocol"
)

var _ = Describe("Reply", func() {
	Describe("Bytes() / Str()", func() {
		It("returns the payload of status and bulk replies", func() {
			Expect(protocol.Status("OK").Str()).To(Equal("OK"))
			Expect(protocol.BulkString("v").Bytes()).To(Equal([]byte("v")))
		})

		It("returns ErrWrongKind for integers and multibulks", func() {
			_, err := protocol.Integer(1).Str()
			Expect(errors.Is(err, protocol.ErrWrongKind)).To(BeTrue())

			_, err = protocol.MultiBulk().Bytes()
			Expect(errors.Is(err, protocol.ErrWrongKind)).To(BeTrue())
		})

		It("returns ErrNilReply for the nil bulk", func() {
			_, err := protocol.NilBulk().Str()
			Expect(errors.Is(err, protocol.ErrNilReply)).To(BeTrue())
		})
	})

	Describe("Int64()", func() {
		It("returns integer replies", func() {
			Expect(protocol.Integer(-5).Int64()).To(Equal(int64(-5)))
		})

		It("parses numeric bulk replies", func() {
			Expect(protocol.BulkString("77").Int64()).To(Equal(int64(77)))
		})

		It("fails for non numeric bulk replies and statuses", func() {
			_, err := protocol.BulkString("x").Int64()
			Expect(errors.Is(err, protocol.ErrWrongKind)).To(BeTrue())

			_, err = protocol.Status("1").Int64()
			Expect(errors.Is(err, protocol.ErrWrongKind)).To(BeTrue())

			_, err = protocol.NilBulk().Int64()
			Expect(errors.Is(err, protocol.ErrNilReply)).To(BeTrue())
		})
	})

	Describe("Elems()", func() {
		It("returns elements in order", func() {
			elems, err := protocol.MultiBulk(protocol.Integer(1), protocol.Integer(2)).Elems()
			Expect(err).To(Succeed())
			Expect(elems).To(Equal([]protocol.Reply{protocol.Integer(1), protocol.Integer(2)}))
		})

		It("returns ErrNilReply for the nil multibulk", func() {
			_, err := protocol.NilMultiBulk().Elems()
			Expect(errors.Is(err, protocol.ErrNilReply)).To(BeTrue())
		})

		It("returns ErrWrongKind for other replies", func() {
			_, err := protocol.BulkString("a").Elems()
			Expect(errors.Is(err, protocol.ErrWrongKind)).To(BeTrue())
		})
	})

	It("renders replies for humans", func() {
		reply := protocol.MultiBulk(
			protocol.Status("OK"),
			protocol.Integer(3),
			protocol.BulkString("a b"),
			protocol.NilBulk(),
		)
		Expect(reply.String()).To(Equal(`[OK 3 "a b" <nil>]`))
	})

	It("keeps nil and empty apart", func() {
		Expect(protocol.NilBulk().IsNil()).To(BeTrue())
		Expect(protocol.BulkString("").IsNil()).To(BeFalse())
		Expect(protocol.NilMultiBulk().IsNil()).To(BeTrue())
		Expect(protocol.MultiBulk().IsNil()).To(BeFalse())
		Expect(protocol.NilMultiBulk().Kind()).To(Equal(protocol.KindMultiBulk))
	})

	Describe("immutability", func() {
		It("is not affected by changes to the slice it was built from", func() {
			src := []byte("abc")
			r := protocol.Bulk(src)
			src[0] = 'X'

			Expect(r.Str()).To(Equal("abc"))
		})

		It("is not affected by changes to the bytes it returned", func() {
			r := protocol.BulkString("abc")
			b, err := r.Bytes()
			Expect(err).To(Succeed())
			b[1] = 'Y'

			Expect(r.Str()).To(Equal("abc"))
		})

		It("is not affected by changes to its elements", func() {
			elems := []protocol.Reply{protocol.Integer(1), protocol.Integer(2)}
			r := protocol.MultiBulk(elems...)
			elems[0] = protocol.Integer(9)

			got, err := r.Elems()
			Expect(err).To(Succeed())
			got[1] = protocol.Integer(8)

			Expect(r.String()).To(Equal("[1 2]"))
		})
	})
})
