package models

import "gorm.io/datatypes"

// ConstructionPlan is the plan document guarded by PlanEditLock.
type ConstructionPlan struct {
	BaseModel

	PlanName  string `gorm:"size:200;not null" json:"plan_name"`
	ProjectID uint   `gorm:"index;not null" json:"project_id"`

	// Reviewers maps reviewer user id to approval state (true, false or null).
	Reviewers datatypes.JSONType[map[uint]*bool] `json:"reviewers"`
}
