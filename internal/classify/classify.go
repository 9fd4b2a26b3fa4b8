// Package classify assigns a category and sub-category to untagged change
// requests.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"basegraph.app/tally/common"
	"basegraph.app/tally/common/llm"
)

// ErrClassification is wrapped by every Classify failure. The record keeps
// both labels absent.
var ErrClassification = errors.New("classify: classification failed")

const (
	CategoryEffect        = "effect"
	CategoryOversight     = "oversight"
	CategoryDomain        = "domain"
	CategoryComplicated   = "complicated"
	CategoryPerformance   = "performance"
	CategorySecurity      = "security"
	CategoryDocumentation = "documentation"
	CategoryTesting       = "testing"
	CategoryOther         = "other"
)

// Categories is the closed label set, in prompt order.
var Categories = []string{
	CategoryEffect,
	CategoryOversight,
	CategoryDomain,
	CategoryComplicated,
	CategoryPerformance,
	CategorySecurity,
	CategoryDocumentation,
	CategoryTesting,
	CategoryOther,
}

type Result struct {
	Category    string
	SubCategory string
}

type Classifier interface {
	Classify(ctx context.Context, description string) (Result, error)
}

// Normalize kebab-cases both labels, maps unknown categories to other and
// fills an empty sub-category with other.
func Normalize(category, subCategory string) Result {
	category = common.Kebab(category)
	if !isKnown(category) {
		category = CategoryOther
	}
	subCategory = common.Kebab(subCategory)
	if subCategory == "" {
		subCategory = CategoryOther
	}
	return Result{Category: category, SubCategory: subCategory}
}

func isKnown(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

type labelReply struct {
	Description string `json:"description" jsonschema_description:"One-line restatement of the change request"`
	Category    string `json:"category" jsonschema:"enum=effect,enum=oversight,enum=domain,enum=complicated,enum=performance,enum=security,enum=documentation,enum=testing,enum=other" jsonschema_description:"Category of the change request"`
	SubCategory string `json:"sub_category" jsonschema_description:"Short kebab-case sub-category, e.g. naming or missing-test"`
}

var labelSchema = llm.GenerateSchema[labelReply]()

const systemPrompt = `You categorize a code review change request.
Categories and sub-categories must be in kebab-case.

Possible categories:
- effect: anything related to the Effect-ts library.
- oversight: a human error like a typo or a missing word.
- domain: a misrepresentation of the domain or an error in the business logic.
- complicated: a function or data structure that is hard to understand.
- performance: a performance issue that can be solved by optimizing the code.
- security: a security issue that can be solved by fixing the code.
- documentation: a documentation issue that can be solved by fixing the code.
- testing: a testing issue that can be solved by fixing the code.
- other: anything that does not fit the categories above.`

const maxAttempts = 3

// LLMClassifier asks a chat model for a structured label.
type LLMClassifier struct {
	llm llm.Client

	// backoff is the first retry delay; it doubles per attempt.
	backoff time.Duration
}

func NewLLMClassifier(client llm.Client) *LLMClassifier {
	return &LLMClassifier{llm: client, backoff: time.Second}
}

// WithBackoff overrides the initial retry delay.
func (c *LLMClassifier) WithBackoff(d time.Duration) *LLMClassifier {
	c.backoff = d
	return c
}

func (c *LLMClassifier) Classify(ctx context.Context, description string) (Result, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Result{}, fmt.Errorf("%w: empty description", ErrClassification)
	}

	var reply labelReply
	var err error
	start := time.Now()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		_, err = c.llm.Chat(ctx, llm.Request{
			SystemPrompt: systemPrompt,
			UserPrompt:   description,
			SchemaName:   "categories",
			Schema:       labelSchema,
			Temperature:  llm.Temp(0),
		}, &reply)
		if err == nil {
			break
		}
		if !llm.IsRetryable(ctx, err) {
			return Result{}, fmt.Errorf("%w: %w", ErrClassification, err)
		}

		slog.WarnContext(ctx, "classification retry",
			"attempt", attempt+1,
			"error", err)

		if attempt == maxAttempts-1 {
			break
		}
		select {
		case <-time.After(c.backoff * time.Duration(1<<attempt)):
		case <-ctx.Done():
			return Result{}, fmt.Errorf("%w: %w", ErrClassification, ctx.Err())
		}
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: after %d attempts: %w", ErrClassification, maxAttempts, err)
	}

	result := Normalize(reply.Category, reply.SubCategory)

	slog.DebugContext(ctx, "change request classified",
		"model", c.llm.Model(),
		"category", result.Category,
		"sub_category", result.SubCategory,
		"latency_ms", time.Since(start).Milliseconds())

	return result, nil
}
