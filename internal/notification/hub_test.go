package notification_test

import (
	"context"
	"errors"
	"time"

	"github.com/ojhankit/team-collaboration-sys-backend/internal/core/events"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/notification"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/notification/broker"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Hub", func() {
	var (
		mem   *broker.MemoryBroker
		flaky *flakyBroker
		hub   *notification.Hub
		ctx   context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		mem = broker.NewMemoryBroker(quietLogger(), 0)
		flaky = &flakyBroker{Broker: mem}
		hub = notification.NewHub(flaky, notification.NewRegistry(), notification.HubConfig{
			SessionBufferSize: 64,
			RetryBaseDelay:    time.Millisecond,
		}, quietLogger())
	})

	AfterEach(func() {
		Expect(hub.Close()).To(Succeed())
		Expect(mem.Close()).To(Succeed())
	})

	next := func(stream *notification.Stream) events.NotificationEvent {
		GinkgoHelper()
		nctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		ev, err := stream.Next(nctx)
		Expect(err).NotTo(HaveOccurred())
		return ev
	}

	Describe("Publish", func() {
		It("delivers a recipient's events in publish order", func() {
			// Given a single session for recipient 1
			stream, err := hub.Subscribe(ctx, 1)
			Expect(err).NotTo(HaveOccurred())

			// When twenty events are published
			var want []string
			for i := int64(1); i <= 20; i++ {
				ev := assigned(1, i)
				want = append(want, ev.ID)
				Expect(hub.Publish(ctx, ev)).To(Succeed())
			}

			// Then the session sees them in the same order
			var got []string
			for range want {
				got = append(got, next(stream).ID)
			}
			Expect(got).To(Equal(want))
		})

		It("fans out to every session of the recipient and nobody else", func() {
			laptop, err := hub.Subscribe(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			phone, err := hub.Subscribe(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			other, err := hub.Subscribe(ctx, 2)
			Expect(err).NotTo(HaveOccurred())

			ev := assigned(1, 42)
			Expect(hub.Publish(ctx, ev)).To(Succeed())

			Expect(next(laptop).ID).To(Equal(ev.ID))
			Expect(next(phone).ID).To(Equal(ev.ID))
			Consistently(other.C(), 100*time.Millisecond).ShouldNot(Receive())
		})

		It("uses one broker subscription per recipient", func() {
			_, err := hub.Subscribe(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			_, err = hub.Subscribe(ctx, 1)
			Expect(err).NotTo(HaveOccurred())

			Expect(mem.Subscribers(notification.RecipientChannel(1))).To(Equal(1))
		})

		It("rejects invalid events", func() {
			err := hub.Publish(ctx, events.NotificationEvent{Kind: "Bogus", RecipientID: 1})
			Expect(errors.Is(err, events.ErrInvalidEvent)).To(BeTrue())
		})

		It("surfaces broker failures to the caller", func() {
			flaky.setPublishErr(broker.ErrBrokerUnavailable)

			err := hub.Publish(ctx, assigned(1, 1))
			Expect(err).To(MatchError(broker.ErrBrokerUnavailable))
		})

		It("succeeds when the recipient has no sessions", func() {
			Expect(hub.Publish(ctx, assigned(99, 1))).To(Succeed())
		})

		It("drops events for a session whose queue is full", func() {
			small := notification.NewHub(mem, nil, notification.HubConfig{
				SessionBufferSize: 2,
				DeliveryRetries:   0,
				RetryBaseDelay:    time.Millisecond,
			}, quietLogger())
			defer small.Close()

			stream, err := small.Subscribe(ctx, 5)
			Expect(err).NotTo(HaveOccurred())

			var ids []string
			for i := int64(1); i <= 5; i++ {
				ev := assigned(5, i)
				ids = append(ids, ev.ID)
				Expect(small.Publish(ctx, ev)).To(Succeed())
			}

			Eventually(func() int { return len(stream.C()) }).Should(Equal(2))
			Consistently(func() int { return len(stream.C()) }, 100*time.Millisecond).Should(Equal(2))
			Expect(next(stream).ID).To(Equal(ids[0]))
			Expect(next(stream).ID).To(Equal(ids[1]))
		})
	})

	Describe("RegisterSession", func() {
		It("returns the same id when a handle registers twice", func() {
			conn := &struct{ addr string }{"10.0.0.1"}

			first, err := hub.RegisterSession(ctx, 3, conn)
			Expect(err).NotTo(HaveOccurred())
			second, err := hub.RegisterSession(ctx, 3, conn)
			Expect(err).NotTo(HaveOccurred())

			Expect(second).To(Equal(first))
			Expect(hub.Registry().SessionCount(3)).To(Equal(1))
		})

		It("leaves no trace when the broker subscription fails", func() {
			flaky.setSubscribeErr(broker.ErrBrokerUnavailable)

			_, err := hub.RegisterSession(ctx, 3, nil)
			Expect(err).To(MatchError(broker.ErrBrokerUnavailable))
			Expect(hub.Registry().HasRecipient(3)).To(BeFalse())
		})

		It("rejects a cancelled context", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			_, err := hub.RegisterSession(cctx, 3, nil)
			Expect(err).To(MatchError(context.Canceled))
		})

		It("rejects an invalid recipient", func() {
			_, err := hub.RegisterSession(ctx, 0, nil)
			Expect(err).To(HaveOccurred())
		})

		It("does not hold up other recipients while a subscription is pending", func() {
			// Given recipient 8 is connected
			other, err := hub.RegisterSession(ctx, 8, nil)
			Expect(err).NotTo(HaveOccurred())

			// And recipient 9's subscription is stuck at the broker
			release := flaky.holdSubscribe()
			pending := make(chan error, 1)
			go func() {
				_, err := hub.RegisterSession(ctx, 9, nil)
				pending <- err
			}()
			Eventually(func() bool { return hub.Registry().HasRecipient(9) }).Should(BeTrue())

			// When recipient 8 disconnects
			done := make(chan struct{})
			go func() {
				hub.UnregisterSession(other)
				close(done)
			}()

			// Then it is not kept waiting
			Eventually(done, 500*time.Millisecond).Should(BeClosed())
			Expect(hub.Registry().HasRecipient(8)).To(BeFalse())

			// And the stuck registration completes once the broker answers
			release()
			Eventually(pending).Should(Receive(BeNil()))
		})

		It("shares one feed between registrations that subscribed at the same time", func() {
			release := flaky.holdSubscribe()
			streams := make(chan *notification.Stream, 2)
			for i := 0; i < 2; i++ {
				go func() {
					defer GinkgoRecover()
					stream, err := hub.Subscribe(ctx, 9)
					Expect(err).NotTo(HaveOccurred())
					streams <- stream
				}()
			}
			Eventually(func() int { return hub.Registry().SessionCount(9) }).Should(Equal(2))

			release()
			var a, b *notification.Stream
			Eventually(streams).Should(Receive(&a))
			Eventually(streams).Should(Receive(&b))
			Eventually(func() int {
				return mem.Subscribers(notification.RecipientChannel(9))
			}).Should(Equal(1))

			ev := assigned(9, 1)
			Expect(hub.Publish(ctx, ev)).To(Succeed())

			Expect(next(a).ID).To(Equal(ev.ID))
			Expect(next(b).ID).To(Equal(ev.ID))
			Consistently(a.C(), 200*time.Millisecond).ShouldNot(Receive())
		})
	})

	Describe("UnregisterSession", func() {
		It("removes the recipient entry and its feed with the last session", func() {
			a, err := hub.RegisterSession(ctx, 4, nil)
			Expect(err).NotTo(HaveOccurred())
			b, err := hub.RegisterSession(ctx, 4, nil)
			Expect(err).NotTo(HaveOccurred())

			hub.UnregisterSession(a)
			Expect(hub.Registry().HasRecipient(4)).To(BeTrue())

			hub.UnregisterSession(b)
			Expect(hub.Registry().HasRecipient(4)).To(BeFalse())
			Eventually(func() int {
				return mem.Subscribers(notification.RecipientChannel(4))
			}).Should(Equal(0))
		})

		It("is a no-op for unknown or already removed sessions", func() {
			id, err := hub.RegisterSession(ctx, 4, nil)
			Expect(err).NotTo(HaveOccurred())

			hub.UnregisterSession(id)
			hub.UnregisterSession(id)
			hub.UnregisterSession("does-not-exist")

			Expect(hub.Registry().RecipientCount()).To(Equal(0))
		})

		It("ends the session's stream", func() {
			stream, err := hub.Subscribe(ctx, 4)
			Expect(err).NotTo(HaveOccurred())

			stream.Close()

			Eventually(stream.Done()).Should(BeClosed())
			Expect(stream.Err()).To(MatchError(notification.ErrSessionClosed))
		})

		It("delivers once to a recipient who reconnects while the old feed is still closing", func() {
			// Given the broker is slow to drop a subscription
			flaky.setCloseDelay(200 * time.Millisecond)
			first, err := hub.Subscribe(ctx, 7)
			Expect(err).NotTo(HaveOccurred())
			first.Close()

			// When the recipient reconnects before the old feed is gone
			again, err := hub.Subscribe(ctx, 7)
			Expect(err).NotTo(HaveOccurred())
			Expect(mem.Subscribers(notification.RecipientChannel(7))).To(Equal(2))

			ev := assigned(7, 1)
			Expect(hub.Publish(ctx, ev)).To(Succeed())

			// Then the event arrives exactly once
			Expect(next(again).ID).To(Equal(ev.ID))
			Consistently(again.C(), 300*time.Millisecond).ShouldNot(Receive())
		})

		It("lets a recipient subscribe again after the feed was released", func() {
			stream, err := hub.Subscribe(ctx, 4)
			Expect(err).NotTo(HaveOccurred())
			stream.Close()

			again, err := hub.Subscribe(ctx, 4)
			Expect(err).NotTo(HaveOccurred())

			ev := assigned(4, 1)
			Expect(hub.Publish(ctx, ev)).To(Succeed())
			Expect(next(again).ID).To(Equal(ev.ID))
		})
	})

	Describe("Stream", func() {
		It("can be taken only once per session", func() {
			id, err := hub.RegisterSession(ctx, 6, nil)
			Expect(err).NotTo(HaveOccurred())

			_, err = hub.Stream(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			_, err = hub.Stream(ctx, id)
			Expect(err).To(MatchError(notification.ErrStreamTaken))
		})

		It("fails for unknown sessions", func() {
			_, err := hub.Stream(ctx, "missing")
			Expect(err).To(MatchError(notification.ErrSessionNotFound))
		})

		It("unregisters the session when its context is cancelled", func() {
			sctx, cancel := context.WithCancel(ctx)
			stream, err := hub.Subscribe(sctx, 6)
			Expect(err).NotTo(HaveOccurred())

			cancel()

			Eventually(stream.Done()).Should(BeClosed())
			Expect(stream.Err()).To(MatchError(context.Canceled))
			Expect(hub.Registry().HasRecipient(6)).To(BeFalse())
		})

		It("returns queued events before reporting the end of stream", func() {
			stream, err := hub.Subscribe(ctx, 6)
			Expect(err).NotTo(HaveOccurred())

			ev := assigned(6, 1)
			Expect(hub.Publish(ctx, ev)).To(Succeed())
			Eventually(func() int { return len(stream.C()) }).Should(Equal(1))

			stream.Close()

			Expect(next(stream).ID).To(Equal(ev.ID))
			_, err = stream.Next(ctx)
			Expect(err).To(MatchError(notification.ErrSessionClosed))
		})
	})

	Describe("broker outage", func() {
		It("terminates the recipient's sessions so they can re-subscribe", func() {
			first, err := hub.Subscribe(ctx, 8)
			Expect(err).NotTo(HaveOccurred())
			second, err := hub.Subscribe(ctx, 8)
			Expect(err).NotTo(HaveOccurred())

			Expect(mem.Close()).To(Succeed())

			Eventually(first.Done()).Should(BeClosed())
			Eventually(second.Done()).Should(BeClosed())
			Expect(first.Err()).To(MatchError(broker.ErrBrokerUnavailable))
			Expect(hub.Registry().HasRecipient(8)).To(BeFalse())
		})
	})

	Describe("Close", func() {
		It("ends every stream and refuses new work", func() {
			stream, err := hub.Subscribe(ctx, 9)
			Expect(err).NotTo(HaveOccurred())

			Expect(hub.Close()).To(Succeed())
			Expect(hub.Close()).To(Succeed())

			Eventually(stream.Done()).Should(BeClosed())
			Expect(stream.Err()).To(MatchError(notification.ErrHubClosed))

			_, err = hub.RegisterSession(ctx, 9, nil)
			Expect(err).To(MatchError(notification.ErrHubClosed))
			Expect(hub.Publish(ctx, assigned(9, 1))).To(MatchError(notification.ErrHubClosed))
		})
	})
})
