package integration

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"fifoq/internal/domain"
)

var _ = Describe("Instances sharing one Redis", func() {
	var (
		mr   *miniredis.Miniredis
		a, b *instance
	)

	BeforeEach(func() {
		var err error
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())

		a = newInstance(newRedisBackend(mr), "")
		b = newInstance(newRedisBackend(mr), "")
	})

	AfterEach(func() {
		a.close()
		b.close()
		mr.Close()
	})

	It("dequeues on one instance what another enqueued", func() {
		Expect(a.do(http.MethodPost, "/shared", `{"from":"a"}`).status).To(Equal(http.StatusCreated))

		resp := b.do(http.MethodGet, "/shared?timeout=1000", "")
		Expect(resp.status).To(Equal(http.StatusOK))
		Expect(resp.body).To(MatchJSON(`{"from":"a"}`))

		Expect(a.do(http.MethodGet, "/shared?timeout=0", "").status).To(Equal(http.StatusNoContent))
	})

	It("wakes a consumer blocked on one instance when another enqueues", func() {
		done := make(chan response, 1)
		go func() {
			defer GinkgoRecover()
			done <- b.do(http.MethodGet, "/wakeup?timeout=5000", "")
		}()

		Consistently(done, "300ms").ShouldNot(Receive())
		a.do(http.MethodPost, "/wakeup", `"ping"`)

		var resp response
		Eventually(done, "3s").Should(Receive(&resp))
		Expect(resp.status).To(Equal(http.StatusOK))
		Expect(string(resp.body)).To(Equal(`"ping"`))
	})

	It("never delivers a message twice across instances", func() {
		const total = 40
		for i := 0; i < total; i++ {
			a.do(http.MethodPost, "/work", fmt.Sprintf(`{"n":%d}`, i))
		}

		var (
			mu   sync.Mutex
			seen = make(map[string]int)
			wg   sync.WaitGroup
		)
		for _, inst := range []*instance{a, b, a, b} {
			wg.Add(1)
			go func(inst *instance) {
				defer GinkgoRecover()
				defer wg.Done()
				for {
					resp := inst.do(http.MethodGet, "/work?timeout=0", "")
					if resp.status == http.StatusNoContent {
						return
					}
					Expect(resp.status).To(Equal(http.StatusOK))
					mu.Lock()
					seen[resp.header.Get("X-Message-Id")]++
					mu.Unlock()
				}
			}(inst)
		}
		wg.Wait()

		Expect(seen).To(HaveLen(total))
		for id, n := range seen {
			Expect(n).To(Equal(1), "message %s delivered %d times", id, n)
		}

		resp := b.do(http.MethodGet, "/work/stats", "")
		var stats domain.QueueStats
		decode(resp.body, &stats)
		Expect(stats.TotalEnqueued).To(Equal(int64(total)))
		Expect(stats.TotalDequeued).To(Equal(int64(total)))
		Expect(stats.Depth).To(BeZero())
	})

	It("sees a queue deleted through the other instance as gone", func() {
		a.do(http.MethodPut, "/transient", "")
		Expect(b.do(http.MethodGet, "/transient", "").status).To(Equal(http.StatusOK))

		Expect(b.do(http.MethodDelete, "/transient", "").status).To(Equal(http.StatusOK))
		Expect(a.do(http.MethodGet, "/transient", "").status).To(Equal(http.StatusNotFound))
	})

	It("reports the store outage instead of an empty queue", func() {
		mr.Close()

		resp := a.do(http.MethodGet, "/down?timeout=0", "")
		Expect(resp.status).To(Equal(http.StatusServiceUnavailable))

		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		decode(resp.body, &body)
		Expect(body.Error.Code).To(Equal(string(domain.KindBackingStoreUnavailable)))
	})
})
