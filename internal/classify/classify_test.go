package classify_test

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/tally/common/llm"
	"basegraph.app/tally/internal/classify"
)

type fakeLLM struct {
	replies  []string
	errs     []error
	requests []llm.Request
}

func (f *fakeLLM) Chat(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
	i := len(f.requests)
	f.requests = append(f.requests, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	reply := f.replies[len(f.replies)-1]
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	if err := json.Unmarshal([]byte(reply), result); err != nil {
		return nil, err
	}
	return &llm.Response{}, nil
}

func (f *fakeLLM) Model() string { return "fake" }

var _ = Describe("Normalize", func() {
	DescribeTable("labels",
		func(category, sub, wantCategory, wantSub string) {
			Expect(classify.Normalize(category, sub)).To(Equal(classify.Result{Category: wantCategory, SubCategory: wantSub}))
		},
		Entry("already clean", "domain", "edge-case", "domain", "edge-case"),
		Entry("title case", "Security", "SQL Injection", "security", "sql-injection"),
		Entry("camel case sub", "testing", "missingTest", "testing", "missing-test"),
		Entry("snake case sub", "oversight", "typo_in_name", "oversight", "typo-in-name"),
		Entry("unknown category", "style", "nit", "other", "nit"),
		Entry("empty sub", "performance", "", "performance", "other"),
		Entry("punctuation only sub", "performance", " -- ", "performance", "other"),
	)
})

var _ = Describe("LLMClassifier", func() {
	var (
		ctx    context.Context
		client *fakeLLM
		c      *classify.LLMClassifier
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = &fakeLLM{}
		c = classify.NewLLMClassifier(client).WithBackoff(0)
	})

	It("returns normalized labels", func() {
		client.replies = []string{`{"description":"x","category":"Domain","sub_category":"Edge Case"}`}

		result, err := c.Classify(ctx, "  Fix off-by-one  ")
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(classify.Result{Category: "domain", SubCategory: "edge-case"}))

		Expect(client.requests).To(HaveLen(1))
		Expect(client.requests[0].UserPrompt).To(Equal("Fix off-by-one"))
		Expect(client.requests[0].SchemaName).To(Equal("categories"))
		Expect(client.requests[0].Schema).NotTo(BeNil())
		Expect(client.requests[0].SystemPrompt).To(ContainSubstring("kebab-case"))
	})

	It("rejects an empty description without calling the model", func() {
		_, err := c.Classify(ctx, " \n ")
		Expect(errors.Is(err, classify.ErrClassification)).To(BeTrue())
		Expect(client.requests).To(BeEmpty())
	})

	It("retries transient failures", func() {
		client.errs = []error{errors.New("connection reset"), errors.New("connection reset")}
		client.replies = []string{`{"description":"x","category":"testing","sub_category":"flaky"}`}

		result, err := c.Classify(ctx, "flaky test")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Category).To(Equal("testing"))
		Expect(client.requests).To(HaveLen(3))
	})

	It("gives up after three attempts", func() {
		boom := errors.New("connection reset")
		client.errs = []error{boom, boom, boom}
		client.replies = []string{`{}`}

		_, err := c.Classify(ctx, "x")
		Expect(errors.Is(err, classify.ErrClassification)).To(BeTrue())
		Expect(errors.Is(err, boom)).To(BeTrue())
		Expect(client.requests).To(HaveLen(3))
	})

	It("does not retry a cancelled context", func() {
		client.errs = []error{context.Canceled}
		client.replies = []string{`{}`}

		_, err := c.Classify(ctx, "x")
		Expect(errors.Is(err, classify.ErrClassification)).To(BeTrue())
		Expect(client.requests).To(HaveLen(1))
	})
})
