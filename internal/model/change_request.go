package model

// ChangeRequest is one piece of reviewer feedback extracted from the first
// note of a merge request discussion. ID is the GitLab note ID and is unique
// within a snapshot.
type ChangeRequest struct {
	ID             int64   `json:"id"`
	MergeRequestID int64   `json:"merge_request_id"` // merge request IID within the project
	Author         string  `json:"author"`           // merge request author, not the commenter
	Description    string  `json:"description"`
	Category       *string `json:"category"`
	SubCategory    *string `json:"sub_category"`
	URL            string  `json:"url"`
}

// Uncategorized reports whether neither label has been assigned yet.
func (c ChangeRequest) Uncategorized() bool {
	return c.Category == nil && c.SubCategory == nil
}

func (c ChangeRequest) CategoryOrEmpty() string {
	if c.Category == nil {
		return ""
	}
	return *c.Category
}

func (c ChangeRequest) SubCategoryOrEmpty() string {
	if c.SubCategory == nil {
		return ""
	}
	return *c.SubCategory
}
