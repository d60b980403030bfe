package e2e

import (
	"github.com/ulala-x/zlink"
	"github.com/ulala-x/zlink/socket"
	"github.com/ulala-x/zlink/zlerr"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ROUTER_MANDATORY", func() {
	It("fails a send to an unknown routing-id instead of silently dropping it", func() {
		ctx, err := zlink.NewContext(zlink.ContextOptions{})
		Expect(err).ToNot(HaveOccurred())
		defer ctx.Term()

		router, err := zlink.NewSocket(ctx, socket.TypeRouter)
		Expect(err).ToNot(HaveOccurred())
		Expect(router.SetOption(zlink.OptRouterMandatory, true)).To(Succeed())
		Expect(router.Bind("tcp://127.0.0.1:*")).To(Succeed())

		err = router.Send([]byte("no-such-peer"), zlink.SndMore)
		Expect(err).To(HaveOccurred())
		Expect(zlerr.Is(err, zlerr.HostUnreachable)).To(BeTrue())
	})

	It("silently drops a send to an unknown routing-id when mandatory is off", func() {
		ctx, err := zlink.NewContext(zlink.ContextOptions{})
		Expect(err).ToNot(HaveOccurred())
		defer ctx.Term()

		router, err := zlink.NewSocket(ctx, socket.TypeRouter)
		Expect(err).ToNot(HaveOccurred())
		Expect(router.Bind("tcp://127.0.0.1:*")).To(Succeed())

		Expect(router.Send([]byte("no-such-peer"), zlink.SndMore)).To(Succeed())
		Expect(router.Send([]byte("body"), 0)).To(Succeed())
	})
})
