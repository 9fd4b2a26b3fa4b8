package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("GitLab", func() {
	var (
		ctx  context.Context
		mock *gitlabAPIMock
		gl   *GitLab
	)

	BeforeEach(func() {
		ctx = context.Background()
		mock = newGitLabAPIMock()
		mock.start()

		var err error
		gl, err = NewGitLab(mock.server.URL+"/", "token", "42")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		mock.close()
	})

	Describe("ListMergeRequests", func() {
		It("follows pagination and maps authors", func() {
			for i := 1; i <= 250; i++ {
				mock.mergeRequests = append(mock.mergeRequests, gitlabMergeRequest{
					IID:    int64(i),
					WebURL: "https://git/mr/" + strconv.Itoa(i),
					Author: &gitlabUser{ID: 7, Username: "dev" + strconv.Itoa(i%3)},
				})
			}

			mrs, err := gl.ListMergeRequests(ctx, time.Date(2024, time.October, 28, 12, 0, 0, 0, time.UTC))
			Expect(err).NotTo(HaveOccurred())
			Expect(mrs).To(HaveLen(250))
			Expect(mrs[0]).To(Equal(MergeRequest{IID: 1, Author: "dev1", WebURL: "https://git/mr/1"}))
			Expect(mrs[249].IID).To(Equal(int64(250)))
			Expect(mock.mrPages()).To(Equal([]string{"1", "2", "3"}))
		})

		It("passes the window start as updated_after", func() {
			_, err := gl.ListMergeRequests(ctx, time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC))
			Expect(err).NotTo(HaveOccurred())
			Expect(mock.updatedAfter()).To(HavePrefix("2025-01-02T03:04:05"))
		})

		It("tolerates a merge request without an author", func() {
			mock.mergeRequests = []gitlabMergeRequest{{IID: 3, WebURL: "https://git/mr/3"}}

			mrs, err := gl.ListMergeRequests(ctx, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(mrs).To(ConsistOf(MergeRequest{IID: 3, WebURL: "https://git/mr/3"}))
		})

		It("wraps API failures as remote errors", func() {
			mock.failMergeRequests = true

			_, err := gl.ListMergeRequests(ctx, time.Now())
			Expect(errors.Is(err, ErrRemote)).To(BeTrue())
		})
	})

	Describe("ListDiscussions", func() {
		It("maps notes and follows pagination", func() {
			var discussions []gitlabDiscussion
			for i := 1; i <= 150; i++ {
				discussions = append(discussions, gitlabDiscussion{
					ID: "d" + strconv.Itoa(i),
					Notes: []gitlabNote{
						{ID: int64(1000 + i), Body: "first", Author: gitlabUser{ID: 9, Username: "rev"}},
						{ID: int64(5000 + i), Body: "reply", System: true, Author: gitlabUser{ID: 1, Username: "bot"}},
					},
				})
			}
			mock.discussions[5] = discussions

			got, err := gl.ListDiscussions(ctx, MergeRequest{IID: 5})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(150))
			Expect(got[0]).To(Equal(Discussion{
				ID: "d1",
				Notes: []Note{
					{ID: 1001, Body: "first", AuthorID: 9, AuthorUsername: "rev"},
					{ID: 5001, Body: "reply", System: true, AuthorID: 1, AuthorUsername: "bot"},
				},
			}))
		})

		It("returns no discussions for a quiet merge request", func() {
			got, err := gl.ListDiscussions(ctx, MergeRequest{IID: 77})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeEmpty())
		})

		It("wraps API failures as remote errors", func() {
			mock.failDiscussions[8] = http.StatusNotFound

			_, err := gl.ListDiscussions(ctx, MergeRequest{IID: 8})
			Expect(errors.Is(err, ErrRemote)).To(BeTrue())
		})
	})

	Describe("UpdateNote", func() {
		It("puts the new body", func() {
			Expect(gl.UpdateNote(ctx, 5, 1001, "x  \n#domain/other")).To(Succeed())
			Expect(mock.noteUpdates).To(Equal([]noteUpdate{{MergeRequestIID: 5, NoteID: 1001, Body: "x  \n#domain/other"}}))
		})

		It("wraps API failures as remote errors", func() {
			mock.failNoteUpdates = true
			err := gl.UpdateNote(ctx, 5, 1001, "x")
			Expect(errors.Is(err, ErrRemote)).To(BeTrue())
		})
	})
})

// --- test fixtures ---

type gitlabUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type gitlabMergeRequest struct {
	Author *gitlabUser `json:"author,omitempty"`
	WebURL string      `json:"web_url"`
	IID    int64       `json:"iid"`
}

type gitlabNote struct {
	Author gitlabUser `json:"author"`
	Body   string     `json:"body"`
	ID     int64      `json:"id"`
	System bool       `json:"system"`
}

type gitlabDiscussion struct {
	ID    string       `json:"id"`
	Notes []gitlabNote `json:"notes"`
}

type noteUpdate struct {
	Body            string
	MergeRequestIID int64
	NoteID          int64
}

type gitlabAPIMock struct {
	server            *httptest.Server
	discussions       map[int64][]gitlabDiscussion
	failDiscussions   map[int64]int
	mergeRequests     []gitlabMergeRequest
	noteUpdates       []noteUpdate
	requestedMRPages  []string
	lastUpdatedAfter  string
	mu                sync.Mutex
	failMergeRequests bool
	failNoteUpdates   bool
}

func newGitLabAPIMock() *gitlabAPIMock {
	return &gitlabAPIMock{
		discussions:     make(map[int64][]gitlabDiscussion),
		failDiscussions: make(map[int64]int),
	}
}

func (m *gitlabAPIMock) start() {
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v4/projects/42/"), "/")
		switch {
		case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "merge_requests":
			m.handleListMergeRequests(w, r)
		case r.Method == http.MethodGet && len(parts) == 3 && parts[2] == "discussions":
			m.handleListDiscussions(w, r, parts[1])
		case r.Method == http.MethodPut && len(parts) == 4 && parts[2] == "notes":
			m.handleUpdateNote(w, r, parts[1], parts[3])
		default:
			http.NotFound(w, r)
		}
	}))
}

func (m *gitlabAPIMock) close() {
	m.server.Close()
}

func (m *gitlabAPIMock) mrPages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requestedMRPages...)
}

func (m *gitlabAPIMock) updatedAfter() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUpdatedAfter
}

func (m *gitlabAPIMock) handleListMergeRequests(w http.ResponseWriter, r *http.Request) {
	if m.failMergeRequests {
		http.Error(w, `{"message":"401 Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	m.mu.Lock()
	m.requestedMRPages = append(m.requestedMRPages, r.URL.Query().Get("page"))
	m.lastUpdatedAfter = r.URL.Query().Get("updated_after")
	m.mu.Unlock()

	writePage(w, r, m.mergeRequests)
}

func (m *gitlabAPIMock) handleListDiscussions(w http.ResponseWriter, r *http.Request, iidStr string) {
	iid, _ := strconv.ParseInt(iidStr, 10, 64)
	if status, ok := m.failDiscussions[iid]; ok {
		http.Error(w, `{"message":"unavailable"}`, status)
		return
	}
	writePage(w, r, m.discussions[iid])
}

func (m *gitlabAPIMock) handleUpdateNote(w http.ResponseWriter, r *http.Request, iidStr, noteIDStr string) {
	if m.failNoteUpdates {
		http.Error(w, `{"message":"403 Forbidden"}`, http.StatusForbidden)
		return
	}

	var body struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}

	iid, _ := strconv.ParseInt(iidStr, 10, 64)
	noteID, _ := strconv.ParseInt(noteIDStr, 10, 64)

	m.mu.Lock()
	m.noteUpdates = append(m.noteUpdates, noteUpdate{MergeRequestIID: iid, NoteID: noteID, Body: body.Body})
	m.mu.Unlock()

	_ = json.NewEncoder(w).Encode(gitlabNote{ID: noteID, Body: body.Body})
}

func writePage[T any](w http.ResponseWriter, r *http.Request, items []T) {
	pageNum, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if pageNum == 0 {
		pageNum = 1
	}
	if perPage == 0 {
		perPage = 20
	}

	start := (pageNum - 1) * perPage
	if start >= len(items) {
		_ = json.NewEncoder(w).Encode([]T{})
		return
	}
	end := min(start+perPage, len(items))
	if end < len(items) {
		w.Header().Set("X-Next-Page", strconv.Itoa(pageNum+1))
	}
	_ = json.NewEncoder(w).Encode(items[start:end])
}
