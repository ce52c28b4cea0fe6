package broker_test

import (
	"context"
	"fmt"

	"github.com/ojhankit/team-collaboration-sys-backend/internal/notification/broker"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func drain(sub broker.Subscription, n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		var msg []byte
		Eventually(sub.Messages()).Should(Receive(&msg))
		out = append(out, string(msg))
	}
	return out
}

var _ = Describe("MemoryBroker", func() {
	var (
		b   *broker.MemoryBroker
		ctx context.Context
	)

	BeforeEach(func() {
		b = broker.NewMemoryBroker(quietLogger(), 0)
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(b.Close()).To(Succeed())
	})

	It("delivers messages to a subscriber in publish order", func() {
		sub, err := b.Subscribe(ctx, "notifications:1")
		Expect(err).NotTo(HaveOccurred())

		var want []string
		for i := 0; i < 50; i++ {
			msg := fmt.Sprintf("m-%d", i)
			want = append(want, msg)
			Expect(b.Publish(ctx, "notifications:1", []byte(msg))).To(Succeed())
		}

		Expect(drain(sub, 50)).To(Equal(want))
	})

	It("fans a message out to every subscriber of the channel", func() {
		first, err := b.Subscribe(ctx, "notifications:1")
		Expect(err).NotTo(HaveOccurred())
		second, err := b.Subscribe(ctx, "notifications:1")
		Expect(err).NotTo(HaveOccurred())
		other, err := b.Subscribe(ctx, "notifications:2")
		Expect(err).NotTo(HaveOccurred())

		Expect(b.Publish(ctx, "notifications:1", []byte("hello"))).To(Succeed())

		Expect(drain(first, 1)).To(Equal([]string{"hello"}))
		Expect(drain(second, 1)).To(Equal([]string{"hello"}))
		Consistently(other.Messages()).ShouldNot(Receive())
	})

	It("ends a closed subscription with ErrSubscriptionClosed", func() {
		sub, err := b.Subscribe(ctx, "notifications:1")
		Expect(err).NotTo(HaveOccurred())

		Expect(sub.Close()).To(Succeed())
		Expect(sub.Close()).To(Succeed())

		Eventually(sub.Messages()).Should(BeClosed())
		Expect(sub.Err()).To(MatchError(broker.ErrSubscriptionClosed))
		Expect(b.Publish(ctx, "notifications:1", []byte("late"))).To(Succeed())
	})

	It("closes the subscription when its context is cancelled", func() {
		subCtx, cancel := context.WithCancel(ctx)
		sub, err := b.Subscribe(subCtx, "notifications:1")
		Expect(err).NotTo(HaveOccurred())

		cancel()

		Eventually(sub.Messages()).Should(BeClosed())
	})

	It("terminates subscriptions with ErrBrokerUnavailable when the broker closes", func() {
		sub, err := b.Subscribe(ctx, "notifications:1")
		Expect(err).NotTo(HaveOccurred())

		Expect(b.Close()).To(Succeed())

		Eventually(sub.Messages()).Should(BeClosed())
		Expect(sub.Err()).To(MatchError(broker.ErrBrokerUnavailable))
		Expect(b.Publish(ctx, "notifications:1", []byte("x"))).To(MatchError(broker.ErrBrokerUnavailable))
		_, err = b.Subscribe(ctx, "notifications:1")
		Expect(err).To(MatchError(broker.ErrBrokerUnavailable))
		Expect(b.Ping(ctx)).To(MatchError(broker.ErrBrokerUnavailable))
	})
})
