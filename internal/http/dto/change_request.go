package dto

import (
	"sort"

	"basegraph.app/tally/internal/model"
)

type ListChangeRequestsQuery struct {
	Category      string `form:"category"`
	SubCategory   string `form:"sub_category"`
	Author        string `form:"author"`
	Uncategorized bool   `form:"uncategorized"`
}

// Matches reports whether cr passes every filter that is set.
func (q ListChangeRequestsQuery) Matches(cr model.ChangeRequest) bool {
	if q.Uncategorized && !cr.Uncategorized() {
		return false
	}
	if q.Category != "" && cr.CategoryOrEmpty() != q.Category {
		return false
	}
	if q.SubCategory != "" && cr.SubCategoryOrEmpty() != q.SubCategory {
		return false
	}
	if q.Author != "" && cr.Author != q.Author {
		return false
	}
	return true
}

type ChangeRequestResponse struct {
	ID             int64   `json:"id"`
	MergeRequestID int64   `json:"merge_request_id"`
	Author         string  `json:"author"`
	Description    string  `json:"description"`
	Category       *string `json:"category"`
	SubCategory    *string `json:"sub_category"`
	URL            string  `json:"url"`
}

type ListChangeRequestsResponse struct {
	ChangeRequests []ChangeRequestResponse `json:"change_requests"`
	Count          int                     `json:"count"`
}

func ToChangeRequestResponse(cr model.ChangeRequest) ChangeRequestResponse {
	return ChangeRequestResponse{
		ID:             cr.ID,
		MergeRequestID: cr.MergeRequestID,
		Author:         cr.Author,
		Description:    cr.Description,
		Category:       cr.Category,
		SubCategory:    cr.SubCategory,
		URL:            cr.URL,
	}
}

type SubCategoryCount struct {
	SubCategory string `json:"sub_category"`
	Count       int    `json:"count"`
}

type CategoryCount struct {
	Category      string             `json:"category"`
	Count         int                `json:"count"`
	SubCategories []SubCategoryCount `json:"sub_categories"`
}

// SummaryResponse is the category/sub-category breakdown a sunburst chart
// is drawn from. Uncategorized records are counted apart.
type SummaryResponse struct {
	Total         int             `json:"total"`
	Uncategorized int             `json:"uncategorized"`
	Categories    []CategoryCount `json:"categories"`
}

// Summarize groups by category then sub-category, largest first, ties by name.
func Summarize(crs []model.ChangeRequest) SummaryResponse {
	resp := SummaryResponse{Total: len(crs), Categories: []CategoryCount{}}

	byCategory := map[string]map[string]int{}
	for _, cr := range crs {
		if cr.Category == nil {
			resp.Uncategorized++
			continue
		}
		subs, ok := byCategory[*cr.Category]
		if !ok {
			subs = map[string]int{}
			byCategory[*cr.Category] = subs
		}
		subs[cr.SubCategoryOrEmpty()]++
	}

	for category, subs := range byCategory {
		cc := CategoryCount{Category: category, SubCategories: make([]SubCategoryCount, 0, len(subs))}
		for sub, n := range subs {
			cc.Count += n
			cc.SubCategories = append(cc.SubCategories, SubCategoryCount{SubCategory: sub, Count: n})
		}
		sort.Slice(cc.SubCategories, func(i, j int) bool {
			a, b := cc.SubCategories[i], cc.SubCategories[j]
			if a.Count != b.Count {
				return a.Count > b.Count
			}
			return a.SubCategory < b.SubCategory
		})
		resp.Categories = append(resp.Categories, cc)
	}
	sort.Slice(resp.Categories, func(i, j int) bool {
		a, b := resp.Categories[i], resp.Categories[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Category < b.Category
	})
	return resp
}
