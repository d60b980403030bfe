package e2e

import (
	"github.com/ulala-x/zlink"
	"github.com/ulala-x/zlink/socket"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("PAIR echo over TCP", func() {
	It("round-trips a message between two PAIR sockets", func() {
		ctx, err := zlink.NewContext(zlink.ContextOptions{})
		Expect(err).ToNot(HaveOccurred())
		defer ctx.Term()

		server, err := zlink.NewSocket(ctx, socket.TypePair)
		Expect(err).ToNot(HaveOccurred())
		Expect(server.Bind("tcp://127.0.0.1:*")).To(Succeed())

		last, err := server.GetOption(zlink.OptLastEndpoint)
		Expect(err).ToNot(HaveOccurred())
		addr := last.(string)

		client, err := zlink.NewSocket(ctx, socket.TypePair)
		Expect(err).ToNot(HaveOccurred())
		Expect(client.Connect("tcp://" + addr)).To(Succeed())

		eventually(func() bool {
			return client.Send([]byte("ping"), 0) == nil
		})

		var got []byte
		eventually(func() bool {
			data, _, err := server.Recv(0)
			if err != nil {
				return false
			}
			got = data
			return true
		})
		Expect(got).To(Equal([]byte("ping")))

		eventually(func() bool {
			return server.Send([]byte("pong"), 0) == nil
		})
		eventually(func() bool {
			data, _, err := client.Recv(0)
			if err != nil {
				return false
			}
			got = data
			return true
		})
		Expect(got).To(Equal([]byte("pong")))
	})

	It("rejects a second peer on an already-paired socket", func() {
		ctx, err := zlink.NewContext(zlink.ContextOptions{})
		Expect(err).ToNot(HaveOccurred())
		defer ctx.Term()

		a, err := zlink.NewSocket(ctx, socket.TypePair)
		Expect(err).ToNot(HaveOccurred())
		Expect(a.Bind("tcp://127.0.0.1:*")).To(Succeed())
		last, _ := a.GetOption(zlink.OptLastEndpoint)
		addr := last.(string)

		b, err := zlink.NewSocket(ctx, socket.TypePair)
		Expect(err).ToNot(HaveOccurred())
		Expect(b.Connect("tcp://" + addr)).To(Succeed())

		eventually(func() bool { return b.Send([]byte("hi"), 0) == nil })

		c, err := zlink.NewSocket(ctx, socket.TypePair)
		Expect(err).ToNot(HaveOccurred())
		// Connect itself dials asynchronously and always returns nil; the
		// rejection happens once the bound side sees a second peer attempt
		// and closes it before any engine ever reaches READY, so c's Send
		// never finds a bound peer to write to.
		Expect(c.Connect("tcp://" + addr)).To(Succeed())
		Consistently(func() error {
			return c.Send([]byte("nope"), 0)
		}, "200ms", "20ms").Should(HaveOccurred())
	})
})
