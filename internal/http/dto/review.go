package dto

type CreateReviewRequest struct {
	// Type is "review" (default) or "sync".
	Type        string `json:"type" binding:"omitempty,oneof=review sync"`
	RequestedBy string `json:"requested_by" binding:"omitempty,max=128"`
}

type CreateReviewResponse struct {
	TaskID   string `json:"task_id"` // string: snowflake IDs overflow JS numbers
	TaskType string `json:"task_type"`
}
