package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/tally/internal/http/dto"
	"basegraph.app/tally/internal/http/handler"
	"basegraph.app/tally/internal/model"
	"basegraph.app/tally/internal/syncer"
)

var sample = []model.ChangeRequest{
	{ID: 1, MergeRequestID: 10, Author: "alice", Description: "a", Category: ptr("domain"), SubCategory: ptr("edge-case"), URL: "u1"},
	{ID: 2, MergeRequestID: 10, Author: "alice", Description: "b", Category: ptr("domain"), SubCategory: ptr("naming"), URL: "u2"},
	{ID: 3, MergeRequestID: 11, Author: "bob", Description: "c", Category: ptr("domain"), SubCategory: ptr("edge-case"), URL: "u3"},
	{ID: 4, MergeRequestID: 12, Author: "bob", Description: "d", Category: ptr("testing"), SubCategory: ptr("missing-test"), URL: "u4"},
	{ID: 5, MergeRequestID: 12, Author: "carol", Description: "e", URL: "u5"},
}

var _ = Describe("ChangeRequestHandler", func() {
	var (
		router  *gin.Engine
		fetcher *mockFetcher
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		fetcher = &mockFetcher{fetchFn: func(context.Context) ([]model.ChangeRequest, error) {
			return sample, nil
		}}
		h := handler.NewChangeRequestHandler(fetcher)

		router.GET("/change-requests", h.List)
		router.GET("/change-requests/summary", h.Summary)
	})

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	DescribeTable("filters",
		func(query string, wantIDs []int64) {
			w := get("/change-requests" + query)
			Expect(w.Code).To(Equal(http.StatusOK))

			var resp dto.ListChangeRequestsResponse
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Count).To(Equal(len(wantIDs)))
			got := make([]int64, 0, len(resp.ChangeRequests))
			for _, cr := range resp.ChangeRequests {
				got = append(got, cr.ID)
			}
			Expect(got).To(Equal(wantIDs))
		},
		Entry("none", "", []int64{1, 2, 3, 4, 5}),
		Entry("category", "?category=domain", []int64{1, 2, 3}),
		Entry("category and sub-category", "?category=domain&sub_category=edge-case", []int64{1, 3}),
		Entry("author", "?author=bob", []int64{3, 4}),
		Entry("uncategorized", "?uncategorized=true", []int64{5}),
		Entry("no match", "?category=security", []int64{}),
	)

	It("renders absent labels as null", func() {
		w := get("/change-requests?uncategorized=true")

		var resp map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		crs := resp["change_requests"].([]any)
		Expect(crs).To(HaveLen(1))
		first := crs[0].(map[string]any)
		Expect(first).To(HaveKeyWithValue("category", BeNil()))
		Expect(first).To(HaveKeyWithValue("url", "u5"))
	})

	It("rejects a malformed boolean filter", func() {
		w := get("/change-requests?uncategorized=maybe")
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 502 when gitlab cannot be queried", func() {
		fetcher.fetchFn = func(context.Context) ([]model.ChangeRequest, error) {
			return nil, fmt.Errorf("%w: %w", syncer.ErrRemoteQuery, errors.New("401"))
		}

		w := get("/change-requests")
		Expect(w.Code).To(Equal(http.StatusBadGateway))
	})

	It("still serves a result that could not be cached", func() {
		fetcher.fetchFn = func(context.Context) ([]model.ChangeRequest, error) {
			return sample[:2], fmt.Errorf("%w: %w", syncer.ErrCacheWrite, errors.New("READONLY"))
		}

		w := get("/change-requests")
		Expect(w.Code).To(Equal(http.StatusOK))
		var resp dto.ListChangeRequestsResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Count).To(Equal(2))
	})

	It("returns 500 on unexpected errors", func() {
		fetcher.fetchFn = func(context.Context) ([]model.ChangeRequest, error) {
			return nil, errors.New("boom")
		}

		w := get("/change-requests/summary")
		Expect(w.Code).To(Equal(http.StatusInternalServerError))
	})

	It("summarizes by category and sub-category", func() {
		w := get("/change-requests/summary")
		Expect(w.Code).To(Equal(http.StatusOK))

		var resp dto.SummaryResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp).To(Equal(dto.SummaryResponse{
			Total:         5,
			Uncategorized: 1,
			Categories: []dto.CategoryCount{
				{Category: "domain", Count: 3, SubCategories: []dto.SubCategoryCount{
					{SubCategory: "edge-case", Count: 2},
					{SubCategory: "naming", Count: 1},
				}},
				{Category: "testing", Count: 1, SubCategories: []dto.SubCategoryCount{
					{SubCategory: "missing-test", Count: 1},
				}},
			},
		}))
	})
})
