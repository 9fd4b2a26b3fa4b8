package note_test

import (
	"fmt"
	"math/rand"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/tally/internal/model"
	"basegraph.app/tally/internal/note"
)

func ptr(s string) *string { return &s }

const mergeRequestNoise = "added 1 commit\n\n<ul><li>655de802 - fix: various fix and improvements</li></ul>\n\n" +
	"[Compare with previous version](/acme/monorepo/-/merge_requests/1317/diffs?diff_id=1170847463&start_sha=22dde424204c6a05cfd3fc11c7958391fbe5a12a)"

var _ = Describe("Parse", func() {
	DescribeTable("bodies without a trailing tag",
		func(raw string) {
			parsed := note.Parse(raw)
			Expect(parsed.Category).To(BeNil())
			Expect(parsed.SubCategory).To(BeNil())
			Expect(parsed.Description).To(Equal(strings.TrimSpace(raw)))
		},
		Entry("plain comment", "comment"),
		Entry("empty", ""),
		Entry("whitespace only", " \n\t  "),
		Entry("surrounding whitespace", "  keep me  \n"),
		Entry("html and markdown", mergeRequestNoise),
		Entry("tag in the middle", "see #domain/edge-case for context"),
		Entry("tag followed by punctuation", "#domain/edge-case."),
		Entry("missing sub-category", "fix this #domain"),
		Entry("empty sub-category", "fix this #domain/"),
		Entry("empty category", "fix this #/edge-case"),
		Entry("three segments", "fix this #a/b/c"),
		Entry("space inside tag", "fix this #domain/edge case"),
		Entry("non ascii label", "fix this #domaine/cas-limité"),
		Entry("hash without slash", "issue #42"),
	)

	DescribeTable("bodies with a trailing tag",
		func(raw, description, category, subCategory string) {
			parsed := note.Parse(raw)
			Expect(parsed.Description).To(Equal(description))
			Expect(parsed.Category).To(HaveValue(Equal(category)))
			Expect(parsed.SubCategory).To(HaveValue(Equal(subCategory)))
		},
		Entry("reviewer comment with markdown line break",
			"Fix off-by-one  \n#domain/edge-case", "Fix off-by-one", "domain", "edge-case"),
		Entry("indented tag line",
			"comment\n            #category/sub_category", "comment", "category", "sub_category"),
		Entry("no separator before tag", "typo#oversight/typo", "typo", "oversight", "typo"),
		Entry("tag only", "#testing/missing-test", "", "testing", "missing-test"),
		Entry("trailing whitespace after tag", "rename this\n#complicated/naming \n\n", "rename this", "complicated", "naming"),
		Entry("digits in labels", "x\n#perf2/n_plus_1", "x", "perf2", "n_plus_1"),
		Entry("only the last tag is taken", "see #a/b\n#c/d", "see #a/b", "c", "d"),
		Entry("last hash wins", "a#b#c/d", "a#b", "c", "d"),
		Entry("html before tag", "<b>bold</b>\n#documentation/readme", "<b>bold</b>", "documentation", "readme"),
	)

	It("recovers any label pair appended on its own line", func() {
		alphabet := []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-")
		label := func(r *rand.Rand) string {
			n := 1 + r.Intn(12)
			out := make([]rune, n)
			for i := range out {
				out[i] = alphabet[r.Intn(len(alphabet))]
			}
			return string(out)
		}
		descriptions := []string{"", "fix", "multi\nline\nbody", "ends with #hash", "see #x/y then more", mergeRequestNoise}

		r := rand.New(rand.NewSource(42))
		for i := 0; i < 500; i++ {
			category, subCategory := label(r), label(r)
			description := descriptions[i%len(descriptions)]

			parsed := note.Parse(description + "\n#" + category + "/" + subCategory)

			Expect(parsed.Category).To(HaveValue(Equal(category)), fmt.Sprintf("iteration %d", i))
			Expect(parsed.SubCategory).To(HaveValue(Equal(subCategory)), fmt.Sprintf("iteration %d", i))
			Expect(parsed.Description).To(Equal(strings.TrimSpace(description)))
		}
	})
})

var _ = Describe("Format", func() {
	It("renders description alone without a category", func() {
		Expect(note.Format(note.Parsed{Description: "just text"})).To(Equal("just text"))
	})

	It("ignores a sub-category without a category", func() {
		Expect(note.Format(note.Parsed{Description: "x", SubCategory: ptr("orphan")})).To(Equal("x"))
	})

	It("renders the tag on its own markdown line", func() {
		body := note.Format(note.Parsed{Description: "Fix off-by-one", Category: ptr("domain"), SubCategory: ptr("edge-case")})
		Expect(body).To(Equal("Fix off-by-one  \n#domain/edge-case"))
	})

	It("defaults a missing sub-category to other", func() {
		body := note.Format(note.Parsed{Description: "x", Category: ptr("security")})
		Expect(body).To(Equal("x  \n#security/other"))

		body = note.Format(note.Parsed{Description: "x", Category: ptr("security"), SubCategory: ptr("")})
		Expect(body).To(Equal("x  \n#security/other"))
	})

	DescribeTable("round-trips through Parse",
		func(raw string) {
			first := note.Parse(raw)
			second := note.Parse(note.Format(first))
			Expect(second).To(Equal(first))
		},
		Entry("tagged", "Fix off-by-one  \n#domain/edge-case"),
		Entry("untagged", "plain text"),
		Entry("messy whitespace", "\n\n  body   \n  #a/b  \n"),
		Entry("mid-text tag is preserved", "see #a/b for details"),
		Entry("tag only", "#testing/unit"),
		Entry("html", mergeRequestNoise),
	)
})

var _ = Describe("FromChangeRequest", func() {
	It("copies description and labels", func() {
		cr := model.ChangeRequest{ID: 1, Description: "d", Category: ptr("effect"), SubCategory: ptr("layer")}
		Expect(note.Format(note.FromChangeRequest(cr))).To(Equal("d  \n#effect/layer"))
	})
})
