package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

const perPage = 100

// GitLab implements Source and NoteWriter over the GitLab REST API for a
// single project.
type GitLab struct {
	client  *gitlab.Client
	project string
}

// NewGitLab builds a client for instanceURL (e.g. "https://gitlab.com").
// project is a numeric ID or a "group/project" path.
func NewGitLab(instanceURL, token, project string) (*GitLab, error) {
	client, err := newClient(instanceURL, token)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}
	return &GitLab{client: client, project: project}, nil
}

func newClient(instanceURL, token string) (*gitlab.Client, error) {
	if instanceURL == "" {
		return gitlab.NewClient(token)
	}
	baseURL := strings.TrimSuffix(instanceURL, "/") + "/api/v4"
	return gitlab.NewClient(token, gitlab.WithBaseURL(baseURL))
}

func (g *GitLab) ListMergeRequests(ctx context.Context, updatedAfter time.Time) ([]MergeRequest, error) {
	opts := &gitlab.ListProjectMergeRequestsOptions{
		UpdatedAfter: gitlab.Ptr(updatedAfter),
		ListOptions: gitlab.ListOptions{
			Page:    1,
			PerPage: perPage,
		},
	}

	var mrs []MergeRequest
	for {
		page, resp, err := g.client.MergeRequests.ListProjectMergeRequests(g.project, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("%w: listing merge requests: %v", ErrRemote, err)
		}

		for _, mr := range page {
			if mr == nil {
				continue
			}
			author := ""
			if mr.Author != nil {
				author = mr.Author.Username
			}
			mrs = append(mrs, MergeRequest{
				IID:    int64(mr.IID),
				Author: author,
				WebURL: mr.WebURL,
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	slog.DebugContext(ctx, "listed merge requests",
		"project", g.project,
		"updated_after", updatedAfter,
		"count", len(mrs))
	return mrs, nil
}

func (g *GitLab) ListDiscussions(ctx context.Context, mr MergeRequest) ([]Discussion, error) {
	opts := &gitlab.ListMergeRequestDiscussionsOptions{}
	opts.Page = 1
	opts.PerPage = perPage

	var discussions []Discussion
	for {
		page, resp, err := g.client.Discussions.ListMergeRequestDiscussions(g.project, mr.IID, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("%w: listing discussions of !%d: %v", ErrRemote, mr.IID, err)
		}

		for _, d := range page {
			if d == nil {
				continue
			}
			discussions = append(discussions, mapDiscussion(d))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return discussions, nil
}

func mapDiscussion(d *gitlab.Discussion) Discussion {
	discussion := Discussion{ID: d.ID}
	for _, n := range d.Notes {
		if n == nil {
			continue
		}
		discussion.Notes = append(discussion.Notes, Note{
			ID:             int64(n.ID),
			Body:           n.Body,
			System:         n.System,
			AuthorID:       int64(n.Author.ID),
			AuthorUsername: n.Author.Username,
		})
	}
	return discussion
}

func (g *GitLab) UpdateNote(ctx context.Context, mrIID, noteID int64, body string) error {
	_, _, err := g.client.Notes.UpdateMergeRequestNote(
		g.project,
		mrIID,
		noteID,
		&gitlab.UpdateMergeRequestNoteOptions{Body: gitlab.Ptr(body)},
		gitlab.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("%w: updating note %d on !%d: %v", ErrRemote, noteID, mrIID, err)
	}
	return nil
}
