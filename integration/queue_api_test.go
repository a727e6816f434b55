package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"fifoq/internal/api"
	"fifoq/internal/domain"
	"fifoq/internal/events"
)

func decode(body []byte, target interface{}) {
	ExpectWithOffset(1, json.Unmarshal(body, target)).To(Succeed())
}

// describeQueueAPI registers the behaviour every backing store must show.
func describeQueueAPI(storeName string, setup func() (*instance, func())) bool {
	return Describe("Queue API over "+storeName, func() {
		var (
			srv     *instance
			cleanup func()
		)

		BeforeEach(func() {
			srv, cleanup = setup()
		})

		AfterEach(func() {
			cleanup()
		})

		It("reports healthy", func() {
			Expect(srv.do(http.MethodGet, "/healthz", "").status).To(Equal(http.StatusOK))
		})

		It("round-trips a message and then times out", func() {
			resp := srv.do(http.MethodPost, "/orders", `{"id":1}`)
			Expect(resp.status).To(Equal(http.StatusCreated))

			resp = srv.do(http.MethodGet, "/orders?timeout=1000", "")
			Expect(resp.status).To(Equal(http.StatusOK))
			Expect(resp.body).To(MatchJSON(`{"id":1}`))
			Expect(resp.header.Get(api.HeaderMessageID)).NotTo(BeEmpty())

			start := time.Now()
			resp = srv.do(http.MethodGet, "/orders?timeout=1000", "")
			Expect(resp.status).To(Equal(http.StatusNoContent))
			Expect(time.Since(start)).To(BeNumerically(">=", 900*time.Millisecond))
		})

		It("delivers in FIFO order", func() {
			for _, p := range []string{`"A"`, `"B"`, `"C"`} {
				Expect(srv.do(http.MethodPost, "/fifo", p).status).To(Equal(http.StatusCreated))
			}

			for _, want := range []string{`"A"`, `"B"`, `"C"`} {
				resp := srv.do(http.MethodGet, "/fifo?timeout=0", "")
				Expect(resp.status).To(Equal(http.StatusOK))
				Expect(string(resp.body)).To(Equal(want))
			}
		})

		It("returns payloads byte for byte", func() {
			payloads := []string{`{"a": "<b>"}`, "[1,\n 2]", `"café"`}
			for _, p := range payloads {
				Expect(srv.do(http.MethodPost, "/exact", p).status).To(Equal(http.StatusCreated))
			}

			for _, want := range payloads {
				resp := srv.do(http.MethodGet, "/exact?timeout=0", "")
				Expect(resp.status).To(Equal(http.StatusOK))
				Expect(string(resp.body)).To(Equal(want))
			}
		})

		It("makes a bulk enqueue visible as a whole and in order", func() {
			resp := srv.do(http.MethodPost, "/bulk/messages/bulk", `{"messages":[1,2,3,4]}`)
			Expect(resp.status).To(Equal(http.StatusCreated))

			var created struct {
				Count      int      `json:"count"`
				MessageIDs []string `json:"messageIds"`
			}
			decode(resp.body, &created)
			Expect(created.Count).To(Equal(4))

			resp = srv.do(http.MethodGet, "/bulk/messages/peek?count=10", "")
			Expect(resp.status).To(Equal(http.StatusOK))

			var peek struct {
				Messages   []domain.MessageView `json:"messages"`
				TotalDepth int64                `json:"totalDepth"`
			}
			decode(resp.body, &peek)
			Expect(peek.TotalDepth).To(Equal(int64(4)))
			Expect(peek.Messages).To(HaveLen(4))
			for i, m := range peek.Messages {
				Expect(m.ID).To(Equal(created.MessageIDs[i]))
				Expect(string(m.Payload)).To(Equal(fmt.Sprintf("%d", i+1)))
			}
		})

		It("returns identical results for repeated peeks", func() {
			for i := 0; i < 7; i++ {
				srv.do(http.MethodPost, "/peeked", fmt.Sprintf(`{"n":%d}`, i))
			}

			first := srv.do(http.MethodGet, "/peeked/messages/peek?count=5", "")
			second := srv.do(http.MethodGet, "/peeked/messages/peek?count=5", "")
			Expect(first.status).To(Equal(http.StatusOK))
			Expect(second.body).To(MatchJSON(first.body))
		})

		It("deletes a queue with its messages", func() {
			for i := 0; i < 3; i++ {
				srv.do(http.MethodPost, "/orders", `{"id":1}`)
			}

			resp := srv.do(http.MethodDelete, "/orders", "")
			Expect(resp.status).To(Equal(http.StatusOK))
			Expect(resp.body).To(MatchJSON(`{"success":true,"queue":"orders","deletedMessages":3}`))

			Expect(srv.do(http.MethodGet, "/orders", "").status).To(Equal(http.StatusNotFound))
			Expect(srv.do(http.MethodDelete, "/orders", "").status).To(Equal(http.StatusNotFound))
		})

		It("keeps totals consistent with depth", func() {
			for i := 0; i < 5; i++ {
				srv.do(http.MethodPost, "/balance", `1`)
			}
			for i := 0; i < 2; i++ {
				Expect(srv.do(http.MethodGet, "/balance?timeout=0", "").status).To(Equal(http.StatusOK))
			}

			resp := srv.do(http.MethodGet, "/balance/stats", "")
			Expect(resp.status).To(Equal(http.StatusOK))

			var stats domain.QueueStats
			decode(resp.body, &stats)
			Expect(stats.TotalEnqueued).To(Equal(int64(5)))
			Expect(stats.TotalDequeued).To(Equal(int64(2)))
			Expect(stats.TotalEnqueued - stats.TotalDequeued).To(Equal(stats.Depth))
			Expect(stats.EnqueueRate.PerHour).To(Equal(int64(5)))
		})

		It("lists queues including explicitly created empty ones", func() {
			Expect(srv.do(http.MethodPut, "/empty", "").status).To(Equal(http.StatusCreated))
			Expect(srv.do(http.MethodPut, "/empty", "").status).To(Equal(http.StatusConflict))
			srv.do(http.MethodPost, "/full", `true`)

			resp := srv.do(http.MethodGet, "/queues", "")
			Expect(resp.status).To(Equal(http.StatusOK))

			var list []domain.QueueSummary
			decode(resp.body, &list)
			Expect(list).To(HaveLen(2))
			Expect(list[0].Name).To(Equal("empty"))
			Expect(list[0].Depth).To(BeZero())
			Expect(list[1].Name).To(Equal("full"))
			Expect(list[1].Depth).To(Equal(int64(1)))
		})

		It("purges messages but keeps the queue", func() {
			srv.do(http.MethodPost, "/purged", `1`)
			srv.do(http.MethodPost, "/purged", `2`)

			resp := srv.do(http.MethodDelete, "/purged/messages", "")
			Expect(resp.status).To(Equal(http.StatusOK))
			Expect(resp.body).To(MatchJSON(`{"success":true,"queue":"purged","purgedCount":2}`))

			resp = srv.do(http.MethodGet, "/purged/info", "")
			Expect(resp.status).To(Equal(http.StatusOK))
			var info domain.QueueInfo
			decode(resp.body, &info)
			Expect(info.Depth).To(BeZero())
			Expect(info.TotalEnqueued).To(Equal(int64(2)))
		})

		It("rejects invalid queue names before touching the store", func() {
			resp := srv.do(http.MethodPost, "/has!bang", `1`)
			Expect(resp.status).To(Equal(http.StatusBadRequest))

			var body api.APIResponse
			decode(resp.body, &body)
			Expect(body.Error.Code).To(Equal(string(domain.KindInvalidQueueName)))

			resp = srv.do(http.MethodGet, "/queues", "")
			Expect(resp.body).To(MatchJSON(`[]`))
		})

		It("publishes lifecycle events", func() {
			srv.do(http.MethodPost, "/evented", `1`)
			srv.do(http.MethodDelete, "/evented/messages", "")
			srv.do(http.MethodDelete, "/evented", "")

			got := srv.feed.Drain()
			Expect(got).To(HaveLen(3))
			Expect(got[0].Type).To(Equal(events.TypeQueueCreated))
			Expect(got[0].Implicit).To(BeTrue())
			Expect(got[1].Type).To(Equal(events.TypeQueuePurged))
			Expect(got[2].Type).To(Equal(events.TypeQueueDeleted))
		})

		It("delivers a single message to exactly one of two racing consumers", func() {
			srv.do(http.MethodPost, "/race", `"only"`)

			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				statuses []int
			)
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					resp := srv.do(http.MethodGet, "/race?timeout=1000", "")
					mu.Lock()
					statuses = append(statuses, resp.status)
					mu.Unlock()
				}()
			}
			wg.Wait()

			Expect(statuses).To(ConsistOf(http.StatusOK, http.StatusNoContent))
		})
	})
}

var _ = describeQueueAPI("the memory store", func() (*instance, func()) {
	srv := newMemoryInstance()
	return srv, srv.close
})

var _ = describeQueueAPI("redis", func() (*instance, func()) {
	mr, err := miniredis.Run()
	Expect(err).NotTo(HaveOccurred())

	srv := newInstance(newRedisBackend(mr), "")
	return srv, func() {
		srv.close()
		mr.Close()
	}
})

var _ = Describe("Blocking dequeue", func() {
	It("returns no message after roughly the requested timeout", func() {
		srv := newMemoryInstance()
		defer srv.close()

		start := time.Now()
		resp := srv.do(http.MethodGet, "/emptyqueue?timeout=500", "")
		elapsed := time.Since(start)

		Expect(resp.status).To(Equal(http.StatusNoContent))
		Expect(elapsed).To(BeNumerically(">=", 450*time.Millisecond))
		Expect(elapsed).To(BeNumerically("<", 2*time.Second))
	})

	It("wakes as soon as a message arrives", func() {
		srv := newMemoryInstance()
		defer srv.close()

		go func() {
			defer GinkgoRecover()
			time.Sleep(200 * time.Millisecond)
			srv.do(http.MethodPost, "/late", `"arrived"`)
		}()

		start := time.Now()
		resp := srv.do(http.MethodGet, "/late?timeout=5000", "")
		Expect(resp.status).To(Equal(http.StatusOK))
		Expect(string(resp.body)).To(Equal(`"arrived"`))
		Expect(time.Since(start)).To(BeNumerically("<", 4*time.Second))
	})
})
